package shared

import "fmt"

// ScheduleLockKey builds the redis key guarding obligation generation for a year.
func ScheduleLockKey(year int) string {
	return fmt.Sprintf("lock:obligations:generate:%d", year)
}
