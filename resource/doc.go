// Package resource provides the host-side stores engines read from and
// write to.
//
// # Descriptor Table
//
// Some engines take game and save data as a descriptor they pull bytes from
// instead of a byte slice. The Table maps small integers to host readers and
// writers for the duration of one engine call:
//
//	table := resource.NewTable()
//	fd, _ := table.InsertReader(file)
//	defer table.Remove(fd)
//
//	r, ok := table.Reader(fd) // guest fd_read lands here
//
// Descriptor 0 is never issued. Readers and writers are kept apart: Reader
// on a writer descriptor fails. Removing a descriptor does not close the
// stream; whoever opened it closes it. Observers see every insert and
// removal.
//
// # Local Storage
//
// LocalStorage implements qspruntime.Storage on the local filesystem with
// "file://" handles. Game-relative paths accept backslashes, never leave the
// game directory, and fall back to case-insensitive matching per segment.
package resource
