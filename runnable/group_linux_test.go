package runnable

import (
	"syscall"
	"testing"
)

func TestGroupAttrDiesWithParent(t *testing.T) {
	attr := groupAttr()
	if !attr.Setpgid {
		t.Fatal("expected the process to get its own group")
	}
	if attr.Pdeathsig != syscall.SIGKILL {
		t.Fatalf("expected SIGKILL on parent death, got %v", attr.Pdeathsig)
	}
}
