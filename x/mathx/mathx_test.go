package mathx

import (
	"testing"
	"time"
)

func TestClamp(t *testing.T) {
	if got := Clamp(5, 1, 3); got != 3 {
		t.Errorf("Clamp(5,1,3) = %d", got)
	}
	if got := Clamp(-1, 3, 1); got != 1 {
		t.Errorf("swapped bounds: got %d", got)
	}
	if got := Clamp(200*time.Millisecond, time.Second, time.Hour); got != time.Second {
		t.Errorf("duration clamp: got %v", got)
	}
}

func TestAbs(t *testing.T) {
	if Abs(int32(-30)) != 30 || Abs(int64(4)) != 4 {
		t.Fatal("Abs")
	}
}
