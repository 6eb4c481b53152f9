package supervisor

import "os"

func currentPidForTest() int {
	return os.Getpid()
}

// deadPidForTest returns a pid very unlikely to correspond to a live
// process, for exercising the "process no longer exists" branch of the
// health loop without actually spawning and killing a child.
func deadPidForTest() int {
	return 999999
}
