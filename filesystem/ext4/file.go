package ext4

import (
	"errors"
	"fmt"
	"io"
)

// File represents a single file in an ext4 filesystem
type File struct {
	*directoryEntry
	*inode
	isReadWrite bool
	isAppend    bool
	offset      int64
	filesystem  *FileSystem
	extents     extents
}

// Read reads up to len(b) bytes from the File.
// It returns the number of bytes read and any error encountered.
// At end of file, Read returns 0, io.EOF
// reads from the last known offset in the file from last read or write
// use Seek() to set at a particular point
func (fl *File) Read(b []byte) (int, error) {
	var (
		fileSize  = int64(fl.size)
		blocksize = uint64(fl.filesystem.superblock.blockSize)
	)
	if fl.offset >= fileSize {
		return 0, io.EOF
	}

	// Calculate the number of bytes to read
	bytesToRead := int64(len(b))
	if fl.offset+bytesToRead > fileSize {
		bytesToRead = fileSize - fl.offset
	}

	// Create a buffer to hold the bytes to be read
	readBytes := int64(0)
	b = b[:bytesToRead]

	// the offset given for reading is relative to the file, so we need to calculate
	// where these are in the extents relative to the file
	readStartBlock := uint64(fl.offset) / blocksize
	for _, e := range fl.extents {
		// if the last block of the extent is before the first block we want to read, skip it
		if uint64(e.fileBlock)+uint64(e.count) < readStartBlock {
			continue
		}
		// extentSize is the number of bytes on the disk for the extent
		extentSize := int64(e.count) * int64(blocksize)
		// where do we start and end in the extent?
		startPositionInExtent := fl.offset - int64(e.fileBlock)*int64(blocksize)
		leftInExtent := extentSize - startPositionInExtent
		// how many bytes are left to read
		toReadInOffset := bytesToRead - readBytes
		if toReadInOffset > leftInExtent {
			toReadInOffset = leftInExtent
		}
		// read those bytes
		startPosOnDisk := e.startingBlock*blocksize + uint64(startPositionInExtent)
		b2 := make([]byte, toReadInOffset)
		read, err := fl.filesystem.backend.ReadAt(b2, int64(startPosOnDisk))
		if err != nil {
			return int(readBytes), fmt.Errorf("failed to read bytes: %v", err)
		}
		copy(b[readBytes:], b2[:read])
		readBytes += int64(read)
		fl.offset += int64(read)

		if readBytes >= bytesToRead {
			break
		}
	}
	var err error
	if fl.offset >= fileSize {
		err = io.EOF
	}

	return int(readBytes), err
}

// Write writes len(b) bytes to the File, growing its extent tree first if
// the current allocation does not reach the new end of file.
// It returns the number of bytes written and an error, if any.
// returns a non-nil error when n != len(b)
// writes to the last known offset in the file from last read or write
// use Seek() to set at a particular point
func (fl *File) Write(p []byte) (int, error) {
	if !fl.isReadWrite {
		return 0, errors.New("file not opened for writing")
	}
	if len(p) == 0 {
		return 0, nil
	}
	blocksize := uint64(fl.filesystem.superblock.blockSize)

	endOffset := uint64(fl.offset) + uint64(len(p))
	neededBlocks := endOffset / blocksize
	if endOffset%blocksize != 0 {
		neededBlocks++
	}
	if haveBlocks := fl.extents.blockCount(); neededBlocks > haveBlocks {
		grown, err := fl.filesystem.allocateExtents(neededBlocks*blocksize, &fl.extents)
		if err != nil {
			return 0, fmt.Errorf("could not grow file: %w", err)
		}
		extentRoot, err := buildRootExtentBytes(*grown, fl.filesystem)
		if err != nil {
			return 0, fmt.Errorf("could not extend extent tree: %w", err)
		}
		fl.inode.extentRoot = extentRoot
		fl.extents = *grown
	}

	writableFile, err := fl.filesystem.backend.Writable()
	if err != nil {
		return 0, err
	}

	writeStartBlock := uint64(fl.offset) / blocksize
	remaining := p
	written := 0
	for _, e := range fl.extents {
		if uint64(e.fileBlock)+uint64(e.count) <= writeStartBlock {
			continue
		}
		extentSize := int64(e.count) * int64(blocksize)
		startPositionInExtent := fl.offset - int64(e.fileBlock)*int64(blocksize)
		if startPositionInExtent < 0 {
			startPositionInExtent = 0
		}
		leftInExtent := extentSize - startPositionInExtent
		toWrite := int64(len(remaining))
		if toWrite > leftInExtent {
			toWrite = leftInExtent
		}
		if toWrite <= 0 {
			continue
		}
		startPosOnDisk := e.startingBlock*blocksize + uint64(startPositionInExtent)
		n, err := writableFile.WriteAt(remaining[:toWrite], int64(startPosOnDisk))
		if err != nil {
			return written, fmt.Errorf("failed to write bytes: %v", err)
		}
		written += n
		fl.offset += int64(n)
		remaining = remaining[n:]
		if len(remaining) == 0 {
			break
		}
	}

	if uint64(fl.offset) > fl.size {
		fl.size = uint64(fl.offset)
	}
	if err := fl.filesystem.writeInode(fl.inode); err != nil {
		return written, fmt.Errorf("could not update inode after write: %w", err)
	}
	if len(remaining) > 0 {
		return written, fmt.Errorf("could not write all bytes: wrote %d of %d", written, len(p))
	}
	return written, nil
}

// Seek set the offset to a particular point in the file
func (fl *File) Seek(offset int64, whence int) (int64, error) {
	newOffset := int64(0)
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekEnd:
		newOffset = int64(fl.size) + offset
	case io.SeekCurrent:
		newOffset = fl.offset + offset
	}
	if newOffset < 0 {
		return fl.offset, fmt.Errorf("cannot set offset %d before start of file", offset)
	}
	fl.offset = newOffset
	return fl.offset, nil
}

// Close close a file that is being read
func (fl *File) Close() error {
	*fl = File{}
	return nil
}
