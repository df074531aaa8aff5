package pipeline_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"cyclicbackup/internal/errbuf"
	"cyclicbackup/internal/pipeline"
)

func TestDrainErrors_AppendsNonemptyLinesOnly(t *testing.T) {
	t.Parallel()

	buf := errbuf.New()
	r := strings.NewReader("first problem\n\nsecond problem\n")

	err := pipeline.DrainErrors(r, buf)
	require.NoError(t, err)

	require.Equal(t, []string{"first problem", "second problem"}, buf.Errors())
}
