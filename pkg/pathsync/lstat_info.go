package pathsync

import (
	"io/fs"
)

// lstatInfo is a compact copy of the metadata the passes compare.
type lstatInfo struct {
	ModTime   int64       // Unix nano.
	Size      int64       // Size in bytes.
	Mode      fs.FileMode // File mode bits.
	IsDir     bool        // True if the path is a directory.
	IsRegular bool        // True if the path is a regular file.
	IsSymlink bool        // True if the path is a symlink.
}

func newLstatInfo(info fs.FileInfo) lstatInfo {
	mode := info.Mode()
	return lstatInfo{
		ModTime:   info.ModTime().UnixNano(),
		Size:      info.Size(),
		Mode:      mode,
		IsDir:     mode.IsDir(),
		IsRegular: mode.IsRegular(),
		IsSymlink: mode&fs.ModeSymlink != 0,
	}
}
