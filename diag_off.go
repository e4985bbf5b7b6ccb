//go:build !fatdebug

package fat

// Diagnostics compile to nothing unless the fatdebug build tag is set.

func (fs *Fs) dumpInfo() {}

func (fs *Fs) dumpEntry(e *EntryHeader) {}
