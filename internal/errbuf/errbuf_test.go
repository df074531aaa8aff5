package errbuf_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cyclicbackup/internal/errbuf"
)

func TestBuffer_AccumulatesErrorsAndMessagesIndependently(t *testing.T) {
	t.Parallel()

	b := errbuf.New()
	b.AddError("tar: permission denied")
	b.AddMessage("tarfile volume-1.tar from backup 1 can be deleted")
	b.AddError("tar: disk full")

	require.Equal(t, []string{"tar: permission denied", "tar: disk full"}, b.Errors())
	require.Equal(t, []string{"tarfile volume-1.tar from backup 1 can be deleted"}, b.Messages())
}
