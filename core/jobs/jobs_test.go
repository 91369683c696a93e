package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForegroundJobCompletes(t *testing.T) {
	tbl := NewTable(nil)

	j := tbl.Launch("a | b", 100, []int{100, 101}, false)
	assert.Equal(t, Running, tbl.State(j))
	assert.Equal(t, 0, j.ID, "foreground jobs are not numbered")

	go func() {
		tbl.Notify(100, Status{Code: 0})
		tbl.Notify(101, Status{Code: 3})
	}()

	status, stopped := tbl.WaitForeground(j)
	assert.False(t, stopped)
	assert.Equal(t, 3, status, "the last stage's code is the job status")
	assert.Equal(t, Reaped, tbl.State(j))
}

func TestForegroundJobStops(t *testing.T) {
	tbl := NewTable(nil)
	j := tbl.Launch("vim", 200, []int{200}, false)

	go tbl.Notify(200, Status{Stopped: true})

	status, stopped := tbl.WaitForeground(j)
	assert.True(t, stopped)
	assert.Equal(t, 128+sigTSTP, status)

	// A stopped foreground job enters the table with a number.
	assert.Equal(t, 1, j.ID)
	assert.Equal(t, Stopped, tbl.State(j))

	got, ok := tbl.Get(1)
	require.True(t, ok)
	assert.Same(t, j, got)
}

func TestContinueAfterStop(t *testing.T) {
	tbl := NewTable(nil)
	j := tbl.Launch("sleep 100", 300, []int{300}, true)

	tbl.Notify(300, Status{Stopped: true})
	assert.Equal(t, Stopped, tbl.State(j))

	tbl.Notify(300, Status{Continued: true})
	assert.Equal(t, Running, tbl.State(j))

	tbl.Notify(300, Status{Code: 0})
	assert.Equal(t, Done, tbl.State(j))
}

func TestOrphanStatusBeatsRegistration(t *testing.T) {
	tbl := NewTable(nil)

	// The wait result for a fast child can arrive before Launch
	// registers the pid; the table holds it until then.
	tbl.Notify(400, Status{Code: 7})

	j := tbl.Launch("fast", 400, []int{400}, false)
	status, stopped := tbl.WaitForeground(j)
	assert.False(t, stopped)
	assert.Equal(t, 7, status)
}

func TestBackgroundNumbering(t *testing.T) {
	tbl := NewTable(nil)

	j1 := tbl.Launch("first &", 500, []int{500}, true)
	j2 := tbl.Launch("second &", 501, []int{501}, true)
	assert.Equal(t, 1, j1.ID)
	assert.Equal(t, 2, j2.ID)

	// Finishing the first frees its number; the next job reuses the
	// slot above the highest still in use.
	tbl.Notify(500, Status{Code: 0})
	tbl.ReapFinished()
	j3 := tbl.Launch("third &", 502, []int{502}, true)
	assert.Equal(t, 3, j3.ID)

	most, ok := tbl.MostRecent()
	require.True(t, ok)
	assert.Same(t, j3, most)

	jobs := tbl.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, j2, jobs[0])
	assert.Same(t, j3, jobs[1])
}

func TestReapFinished(t *testing.T) {
	tbl := NewTable(nil)
	j := tbl.Launch("task &", 600, []int{600}, true)

	assert.Empty(t, tbl.ReapFinished())

	tbl.Notify(600, Status{Code: 0})
	done := tbl.ReapFinished()
	require.Len(t, done, 1)
	assert.Same(t, j, done[0])

	assert.Empty(t, tbl.Jobs())
}

func TestWaitJob(t *testing.T) {
	tbl := NewTable(nil)
	j := tbl.Launch("task &", 700, []int{700}, true)

	go func() {
		time.Sleep(10 * time.Millisecond)
		tbl.Notify(700, Status{Code: 5})
	}()

	assert.Equal(t, 5, tbl.WaitJob(j))
	assert.Empty(t, tbl.Jobs())
}

func TestWaitAll(t *testing.T) {
	tbl := NewTable(nil)
	tbl.Launch("a &", 800, []int{800}, true)
	tbl.Launch("b &", 801, []int{801}, true)

	go func() {
		time.Sleep(10 * time.Millisecond)
		tbl.Notify(800, Status{Code: 0})
		tbl.Notify(801, Status{Code: 0})
	}()

	tbl.WaitAll()
	assert.Empty(t, tbl.Jobs())
}

func TestDisown(t *testing.T) {
	tbl := NewTable(nil)
	j := tbl.Launch("task &", 900, []int{900}, true)

	tbl.Disown(j)
	assert.Empty(t, tbl.Jobs())

	// Late wait results for a disowned pid are absorbed quietly.
	tbl.Notify(900, Status{Code: 0})
}

func TestDescribe(t *testing.T) {
	tbl := NewTable(nil)
	j1 := tbl.Launch("sleep 30 &", 1000, []int{1000}, true)
	j2 := tbl.Launch("make &", 1001, []int{1001}, true)

	assert.Equal(t, "[1]  Running\tsleep 30 &", tbl.Describe(j1))
	assert.Equal(t, "[2]+ Running\tmake &", tbl.Describe(j2))
}

func TestEmptyPipelineIsDone(t *testing.T) {
	tbl := NewTable(nil)

	// A pipeline of only in-process stages registers no pids.
	j := tbl.Launch("echo hi", 0, nil, false)
	assert.Equal(t, Done, tbl.State(j))
}
