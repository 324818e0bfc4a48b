package txnlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenInitializesEmptyLog(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)
	defer l.Close()

	x := l.NextXid()
	require.True(t, x.Valid())

	outcome, err := l.Outcome(x)
	require.NoError(t, err)
	require.Equal(t, OutcomeInProgress, outcome)
}

func TestRecordCommittedPersistsOutcomeAndTime(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)
	defer l.Close()

	x := l.NextXid()
	now := time.Now()
	require.NoError(t, l.RecordCommitted(x, now))

	outcome, err := l.Outcome(x)
	require.NoError(t, err)
	require.Equal(t, OutcomeCommitted, outcome)

	ct, err := l.CommitTime(x)
	require.NoError(t, err)
	require.WithinDuration(t, now, ct, time.Second)
}

func TestReopenSeesPriorXids(t *testing.T) {
	dir := t.TempDir()
	l1, err := Open(dir)
	require.NoError(t, err)
	x := l1.NextXid()
	require.NoError(t, l1.RecordAborted(x))
	require.NoError(t, l1.Close())

	l2, err := Open(dir)
	require.NoError(t, err)
	defer l2.Close()
	outcome, err := l2.Outcome(x)
	require.NoError(t, err)
	require.Equal(t, OutcomeAborted, outcome)

	next := l2.NextXid()
	require.Greater(t, uint32(next), uint32(x))
}

func TestDisabledXidRecordFails(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)
	defer l.Close()
	err = l.RecordAborted(0)
	require.Error(t, err)
}
