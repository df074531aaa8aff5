// Package pipeline wires the three archive-stage child processes together:
// packer | encryptor | compressor > target file, with each child's stderr
// kept open for observation rather than piped onward.
//
// Grounded on the reference implementation's single subprocess.Popen call
// (original_source/pybackup2.py's tar_proc), generalized here to a chain of
// three cooperating processes as required: packer.stdout feeds
// encryptor.stdin, encryptor.stdout feeds compressor.stdin, and
// compressor.stdout is redirected straight to the target file's descriptor
// so no Go code ever buffers the compressed bytes.
package pipeline

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Spec describes one pipeline invocation.
type Spec struct {
	// PackerArgv, EncryptorArgv, CompressorArgv are the argv slices for each
	// stage, argv[0] being the executable name or path.
	PackerArgv     []string
	EncryptorArgv  []string
	CompressorArgv []string

	// Dir is the working directory for the packer, so that relative member
	// paths written to its stdin resolve against the filesystem root being
	// archived.
	Dir string

	// Passphrase is passed to the encryptor via its environment rather than
	// on the command line, so it never appears in a process listing.
	Passphrase string
	// PassphraseEnvVar names the environment variable the encryptor expects
	// the passphrase under.
	PassphraseEnvVar string

	// Target receives the compressor's stdout directly.
	Target *os.File
}

// Pipeline holds the three running child processes and the pipes a caller
// needs: the packer's stdin (for writing member paths) and each process's
// stderr (for observation by AckReader / the error drains).
type Pipeline struct {
	packer     *exec.Cmd
	encryptor  *exec.Cmd
	compressor *exec.Cmd

	PackerStdin io.WriteCloser

	PackerStderr     io.ReadCloser
	EncryptorStderr  io.ReadCloser
	CompressorStderr io.ReadCloser
}

// Start launches all three stages and wires their stdio. The caller owns
// Target's lifetime; Start does not close it (the compressor inherits the
// descriptor and the caller may still need it for nothing further, but
// closing is the caller's call after Wait returns).
func Start(spec Spec) (*Pipeline, error) {
	packer := exec.Command(spec.PackerArgv[0], spec.PackerArgv[1:]...)
	packer.Dir = spec.Dir

	encryptor := exec.Command(spec.EncryptorArgv[0], spec.EncryptorArgv[1:]...)
	if spec.PassphraseEnvVar != "" {
		encryptor.Env = append(os.Environ(), spec.PassphraseEnvVar+"="+spec.Passphrase)
	}

	compressor := exec.Command(spec.CompressorArgv[0], spec.CompressorArgv[1:]...)
	compressor.Stdout = spec.Target

	packerStdin, err := packer.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: packer stdin pipe: %w", err)
	}
	packerStdout, err := packer.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: packer stdout pipe: %w", err)
	}
	packerStderr, err := packer.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: packer stderr pipe: %w", err)
	}
	encryptor.Stdin = packerStdout

	encryptorStdout, err := encryptor.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: encryptor stdout pipe: %w", err)
	}
	encryptorStderr, err := encryptor.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: encryptor stderr pipe: %w", err)
	}
	compressor.Stdin = encryptorStdout

	compressorStderr, err := compressor.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: compressor stderr pipe: %w", err)
	}

	if err := compressor.Start(); err != nil {
		return nil, fmt.Errorf("pipeline: start compressor: %w", err)
	}
	if err := encryptor.Start(); err != nil {
		return nil, fmt.Errorf("pipeline: start encryptor: %w", err)
	}
	if err := packer.Start(); err != nil {
		return nil, fmt.Errorf("pipeline: start packer: %w", err)
	}

	return &Pipeline{
		packer:     packer,
		encryptor:  encryptor,
		compressor: compressor,

		PackerStdin: packerStdin,

		PackerStderr:     packerStderr,
		EncryptorStderr:  encryptorStderr,
		CompressorStderr: compressorStderr,
	}, nil
}

// CloseStdin closes the packer's stdin, signalling end-of-input. The packer
// then drains its remaining output through the encryptor and compressor and
// exits, per spec: "on fatal error the driver closes packer stdin, which
// causes the pipeline to drain and exit" — the same close is also the
// normal end-of-run signal, not only the error path.
func (p *Pipeline) CloseStdin() error {
	return p.PackerStdin.Close()
}

// Wait waits for all three children to exit, in producer-to-consumer order
// so each stage observes EOF from its upstream before this function waits
// on it. It returns the first non-nil error encountered, if any.
func (p *Pipeline) Wait() error {
	var firstErr error
	note := func(stage string, err error) {
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("pipeline: %s: %w", stage, err)
		}
	}
	note("packer", p.packer.Wait())
	note("encryptor", p.encryptor.Wait())
	note("compressor", p.compressor.Wait())
	return firstErr
}
