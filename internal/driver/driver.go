// Package driver orchestrates one end-to-end backup run: the eleven-step
// sequence of spec.md §4.8, implemented as a single value-owning `Run`
// rather than the process-wide globals the reference keeps (spec.md §9's
// explicit redesign instruction). Grounded on the teacher's
// maintenance.Worker orchestration (bounded concurrent producers feeding a
// single consumer, explicit stop conditions, coordinated shutdown),
// generalized here from a single-goroutine file processor to the
// three-stage archive pipeline the spec requires.
package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"golang.org/x/sync/errgroup"

	"cyclicbackup/internal/ackreader"
	"cyclicbackup/internal/catalog"
	"cyclicbackup/internal/config"
	"cyclicbackup/internal/counters"
	"cyclicbackup/internal/errbuf"
	"cyclicbackup/internal/logging"
	"cyclicbackup/internal/pendingset"
	"cyclicbackup/internal/pipeline"
	"cyclicbackup/internal/report"
	"cyclicbackup/internal/selector"
	"cyclicbackup/internal/sizebudget"
	"cyclicbackup/internal/walker"
)

// quiescencePoll is the fixed sampling interval of step 7, "thread-sleep-based,
// not event-driven" per spec.md §9. A package variable rather than a
// constant so white-box tests can shrink it instead of waiting out real
// multi-second polls.
var quiescencePoll = 5 * time.Second

// ChildProcesses names the three executables PipelineSupervisor spawns.
// Defaults match conventional Unix tools honoring the I/O contracts of
// spec.md §6; any substitute honoring those contracts works.
type ChildProcesses struct {
	Packer     []string
	Encryptor  []string
	Compressor []string
}

// DefaultChildProcesses returns the conventional tar | openssl | xz chain:
// tar packs a verbatim, non-recursive member list read from stdin and
// writes its per-member verbose listing to stderr (GNU tar redirects -v
// there automatically once stdout carries the archive); openssl is a
// symmetric stream cipher taking its passphrase from the environment; xz
// compresses the ciphertext stream.
func DefaultChildProcesses() ChildProcesses {
	return ChildProcesses{
		Packer:     []string{"tar", "-cvf", "-", "--no-recursion", "-T", "-"},
		Encryptor:  []string{"openssl", "enc", "-aes-256-cbc", "-salt", "-pass", "env:CYCLICBACKUP_PASSPHRASE"},
		Compressor: []string{"xz", "-z", "-c"},
	}
}

// run owns every piece of state a single backup run touches: the catalog
// connection, the size budget, the pending set, the counters, the error
// buffer, and (while the run is active) the pipeline. Apart from the
// quiescencePoll interval, there is no package-level state in this
// package — this is the `Run` value
// spec.md §9 calls for, named in lower case here because the exported
// entry point is the top-level function Run below.
type run struct {
	cfg    config.Config
	procs  ChildProcesses
	log    *logging.Logger
	budget *sizebudget.Budget
	cat    *catalog.Catalog

	pending *pendingset.Set
	cnt     *counters.Counters
	buf     *errbuf.Buffer
}

// Run executes the full eleven-step sequence of spec.md §4.8 against the
// conventional tar | openssl | xz child-process chain and returns the
// resulting report.
func Run(ctx context.Context, cfg config.Config, log *logging.Logger) (report.Report, error) {
	return RunWith(ctx, cfg, DefaultChildProcesses(), log, time.Now())
}

// RunWith is Run generalized over the child-process argv and the run's
// start time, so tests can substitute trivial stand-ins for the archiver
// chain and a fixed clock for target-path substitution.
func RunWith(ctx context.Context, cfg config.Config, procs ChildProcesses, log *logging.Logger, now time.Time) (report.Report, error) {
	r := &run{
		cfg:     cfg,
		procs:   procs,
		log:     log,
		pending: pendingset.New(),
		cnt:     &counters.Counters{},
		buf:     errbuf.New(),
	}
	return r.execute(ctx, now)
}

func (r *run) execute(ctx context.Context, now time.Time) (report.Report, error) {
	// Step 1: open catalog, compute current_volume, record volume row.
	cat, err := catalog.Open(ctx, r.cfg.DB)
	if err != nil {
		return report.Report{}, fmt.Errorf("driver: open catalog: %w", err)
	}
	r.cat = cat
	defer r.cat.Close()

	volume, err := r.cat.CurrentVolume(ctx)
	if err != nil {
		return report.Report{}, fmt.Errorf("driver: current volume: %w", err)
	}

	targetPath := config.ResolveTarget(r.cfg.Target, now)
	if err := r.cat.RecordVolume(ctx, volume, targetPath); err != nil {
		return report.Report{}, fmt.Errorf("driver: record volume: %w", err)
	}
	r.log.Infof("starting volume %d -> %s", volume, targetPath)

	// Step 2: open target file; construct SizeBudget.
	targetDir := filepath.Dir(targetPath)
	if err := config.ValidateTargetOutsideRoots(targetDir, r.cfg.Backup); err != nil {
		return report.Report{}, fmt.Errorf("driver: %w", err)
	}
	if err := checkTargetDirWritable(targetDir); err != nil {
		return report.Report{}, fmt.Errorf("driver: %w", err)
	}

	target, err := os.Create(targetPath)
	if err != nil {
		return report.Report{}, fmt.Errorf("driver: open target file: %w", err)
	}
	defer target.Close()

	r.budget = sizebudget.New(sizebudget.ParseCap(r.cfg.MaxTargetSize))

	// Step 3: spawn pipeline; start AckReader and two ErrorReaders.
	pl, err := pipeline.Start(pipeline.Spec{
		PackerArgv:       r.procs.Packer,
		EncryptorArgv:    r.procs.Encryptor,
		CompressorArgv:   r.procs.Compressor,
		Dir:              "/",
		Passphrase:       r.cfg.Key,
		PassphraseEnvVar: "CYCLICBACKUP_PASSPHRASE",
		Target:           target,
	})
	if err != nil {
		return report.Report{}, fmt.Errorf("driver: start pipeline: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ackreader.Run(gctx, pl.PackerStderr, r.pending, r.cat, volume, r.cnt, r.buf)
	})
	group.Go(func() error { return pipeline.DrainErrors(pl.EncryptorStderr, r.buf) })
	group.Go(func() error { return pipeline.DrainErrors(pl.CompressorStderr, r.buf) })

	// Step 4: compile excludes; compute min_age cutoff.
	excludes := make([]*regexp.Regexp, 0, len(r.cfg.Exclude))
	for _, pt := range r.cfg.Exclude {
		cpt, err := regexp.Compile(pt)
		if err != nil {
			r.buf.AddError(fmt.Sprintf("driver: invalid exclude pattern %q: %v", pt, err))
			continue
		}
		excludes = append(excludes, cpt)
	}
	minAgeCutoff := now.Add(-time.Duration(r.cfg.MinAge) * time.Second)

	blacklist := make(map[string]struct{})
	sctx := &selector.Context{
		ExcludePatterns: excludes,
		ExcludeFlag:     r.cfg.ExcludeFlag,
		CatalogPath:     r.cfg.DB,
		TargetPath:      targetPath,
		MinAgeCutoff:    minAgeCutoff,
		Blacklist:       blacklist,
	}

	// Step 5: incremental pass.
	for _, root := range r.cfg.Backup {
		if r.budget.IsFilled() {
			break
		}
		if err := r.incrementalPass(ctx, root, sctx, pl); err != nil {
			r.buf.AddError(fmt.Sprintf("driver: incremental pass over %s: %v", root, err))
		}
	}

	// Step 6: cyclic pass.
	if err := r.cyclicPass(ctx, volume, sctx, pl); err != nil {
		r.buf.AddError(fmt.Sprintf("driver: cyclic pass: %v", err))
	}

	// Step 7: quiescence wait.
	r.waitForQuiescence(target)

	// Step 8: close packer stdin; wait for all three children.
	if err := pl.CloseStdin(); err != nil {
		r.buf.AddError(fmt.Sprintf("driver: close packer stdin: %v", err))
	}
	if err := pl.Wait(); err != nil {
		r.buf.AddError(fmt.Sprintf("driver: pipeline: %v", err))
	}
	if err := group.Wait(); err != nil {
		r.buf.AddError(fmt.Sprintf("driver: reader: %v", err))
	}

	// Step 9: report still-pending entries.
	for _, p := range r.pending.Snapshot() {
		r.buf.AddError(fmt.Sprintf("never acknowledged: %s", p))
	}

	// Step 10: retire empty volumes.
	retired, err := r.cat.RetireEmptyVolumes(ctx)
	if err != nil {
		r.buf.AddError(fmt.Sprintf("driver: retire empty volumes: %v", err))
	}
	for _, rv := range retired {
		r.buf.AddMessage(fmt.Sprintf("tarfile %s from backup %d can be deleted", rv.Tarfile, rv.Num))
	}

	// Step 11: log the buffers and return the counter snapshot.
	errs, msgs := r.buf.Errors(), r.buf.Messages()
	for _, e := range errs {
		r.log.Error(e)
	}
	for _, m := range msgs {
		r.log.Info(m)
	}
	return report.Report{
		Counters: r.cnt.Snapshot(),
		Errors:   errs,
		Messages: msgs,
	}, nil
}

func (r *run) incrementalPass(ctx context.Context, root string, sctx *selector.Context, pl *pipeline.Pipeline) error {
	rootInfo, err := os.Lstat(root)
	if err != nil {
		return fmt.Errorf("lstat root: %w", err)
	}
	startDevice := deviceID(rootInfo)
	sctx.StartDevice = startDevice

	opts := walker.Options{
		ExcludeFlag: sctx.ExcludeFlag,
		RegisterBlacklist: func(dir string) {
			sctx.Blacklist[dir] = struct{}{}
		},
		Budget: r.budget,
	}

	return walker.Walk(ctx, root, opts, func(path string, info os.FileInfo) error {
		d := selector.ClassifyIncremental(ctx, r.cat, r.budget, sctx, path, info, r.cnt)
		if d.Outcome != selector.Admit {
			return nil
		}
		return r.admit(path, info.IsDir(), pl)
	})
}

func (r *run) cyclicPass(ctx context.Context, volume int, sctx *selector.Context, pl *pipeline.Pipeline) error {
	rows, err := r.cat.IterOlderThan(ctx, volume)
	if err != nil {
		return fmt.Errorf("iterate older rows: %w", err)
	}

	for _, row := range rows {
		if r.budget.IsFilled() {
			break
		}
		d := selector.ClassifyCyclic(ctx, r.cat, r.budget, sctx, row, r.cnt)
		if d.Outcome != selector.Admit {
			continue
		}
		path := "/" + row.Path
		info, err := os.Lstat(path)
		if err != nil {
			continue
		}
		if err := r.admit(path, info.IsDir(), pl); err != nil {
			return err
		}
	}
	return nil
}

// admit performs the admission side-effect of spec.md §4.4: normalize,
// insert into the pending set, write the line to packer stdin.
func (r *run) admit(path string, isDir bool, pl *pipeline.Pipeline) error {
	key := selector.NormalizePath(path, isDir)
	r.pending.Add(key)

	line := key
	if isDir {
		line += "/"
	}
	_, err := io.WriteString(pl.PackerStdin, line+"\n")
	return err
}

// waitForQuiescence polls (target file size, pending-set size) every
// quiescencePoll and returns once both are unchanged across two
// consecutive samples, per spec.md §4.8 step 7: the packer may still be
// producing well after the driver's last stdin write because the reserve
// decision and the ack are decoupled by three levels of pipe buffering.
func (r *run) waitForQuiescence(target *os.File) {
	lastSize, lastPending := int64(-1), -1

	for {
		info, err := target.Stat()
		size := int64(-1)
		if err == nil {
			size = info.Size()
		}
		pendingLen := r.pending.Len()

		if size == lastSize && pendingLen == lastPending {
			return
		}
		lastSize, lastPending = size, pendingLen
		time.Sleep(quiescencePoll)
	}
}
