package spinner

import "testing"

func TestSpinStopsCleanly(t *testing.T) {
	stop := Spin("working…")
	stop()
}

func TestSpinSequentialCallsDoNotDeadlock(t *testing.T) {
	for i := 0; i < 5; i++ {
		stop := Spin("working…")
		stop()
	}
}
