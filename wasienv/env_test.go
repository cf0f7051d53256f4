package wasienv

import (
	"testing"
	"time"
)

func TestCleanupOnce(t *testing.T) {
	env, err := NewBuilder("prog").Build()
	if err != nil {
		t.Fatal(err)
	}
	env.SetRunning()

	env.Cleanup(3)
	env.Cleanup(5)

	if env.ExitCode() != 3 {
		t.Fatalf("exit code = %d, want the first recorded 3", env.ExitCode())
	}
	if env.IsRunning() {
		t.Fatal("still marked running after cleanup")
	}
	select {
	case <-env.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestCleanupClosesStdinPipe(t *testing.T) {
	env, err := NewBuilder("prog").Build()
	if err != nil {
		t.Fatal(err)
	}
	pipe, ok := env.Fs().StdioFile(FdStdin).(*FilePipe)
	if !ok {
		t.Fatalf("stdin = %T", env.Fs().StdioFile(FdStdin))
	}
	env.Cleanup(0)
	if _, err := pipe.Write([]byte("late")); err == nil {
		t.Fatal("write to closed stdin pipe succeeded")
	}
}

func TestCleanupWakesFutexWaiters(t *testing.T) {
	env, err := NewBuilder("prog").Build()
	if err != nil {
		t.Fatal(err)
	}
	ch := env.Futexes().Wait(env.FutexKey(8))

	env.Cleanup(0)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("futex waiter not woken by cleanup")
	}
}

func TestFutexWakeCount(t *testing.T) {
	ft := NewFutexTable()
	a := ft.Wait(1)
	b := ft.Wait(1)
	c := ft.Wait(1)

	if n := ft.Wake(1, 2); n != 2 {
		t.Fatalf("woke %d, want 2", n)
	}
	select {
	case <-a:
	default:
		t.Fatal("first waiter not woken")
	}
	select {
	case <-b:
	default:
		t.Fatal("second waiter not woken")
	}
	select {
	case <-c:
		t.Fatal("third waiter woken early")
	default:
	}

	if n := ft.Wake(1, 10); n != 1 {
		t.Fatalf("woke %d, want the remaining 1", n)
	}
	if n := ft.Wake(2, 1); n != 0 {
		t.Fatalf("woke %d on an empty key, want 0", n)
	}

	d := ft.Wait(1)
	if n := ft.Wake(1, -1); n != 0 {
		t.Fatalf("woke %d with a negative count, want 0", n)
	}
	select {
	case <-d:
		t.Fatal("waiter woken by a negative count")
	default:
	}
}

func TestClockOffset(t *testing.T) {
	env, err := NewBuilder("prog").Build()
	if err != nil {
		t.Fatal(err)
	}
	if env.ClockOffset() != 0 {
		t.Fatalf("initial offset = %v", env.ClockOffset())
	}
	env.SetClockOffset(5 * time.Second)
	if env.ClockOffset() != 5*time.Second {
		t.Fatalf("offset = %v", env.ClockOffset())
	}
}

func TestControlPlaneTaskSlots(t *testing.T) {
	cp, err := NewControlPlane(ControlPlaneConfig{MaxTaskCount: 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := cp.AcquireTask(); err != nil {
		t.Fatal(err)
	}
	if err := cp.AcquireTask(); err != nil {
		t.Fatal(err)
	}
	if err := cp.AcquireTask(); err == nil {
		t.Fatal("third acquire succeeded beyond the sizing")
	}
	cp.ReleaseTask()
	if err := cp.AcquireTask(); err != nil {
		t.Fatal(err)
	}
	if got := cp.ActiveTasks(); got != 2 {
		t.Fatalf("active = %d", got)
	}
}
