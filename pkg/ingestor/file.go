package ingestor

import (
	"context"
	"io"
	"os"
)

// KmsgPath is the kernel message interface read by dmesg.
const KmsgPath = "/proc/kmsg"

// FileSource reads a file or character device, such as /proc/kmsg.
type FileSource struct {
	// SourceName is returned by Name.
	SourceName string

	// Path is the file to read.
	Path string
}

// NewKmsgSource creates the "dmesg" source backed by /proc/kmsg.
func NewKmsgSource() *FileSource {
	return &FileSource{SourceName: "dmesg", Path: KmsgPath}
}

func (f *FileSource) Name() string { return f.SourceName }

func (f *FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	return os.Open(f.Path)
}
