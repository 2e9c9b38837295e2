package pmv

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// crcFile returns the CRC-32 of the whole of file as read by ReadInfo,
// along with the movie information
func crcFile(file string) (string, *Info, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	h := crc32.NewIEEE()
	info, err := ReadInfo(io.TeeReader(f, h))
	if err != nil {
		return "", nil, err
	}

	// Include anything after the frames ReadInfo looked at
	if _, err = io.Copy(h, f); err != nil {
		return "", nil, err
	}

	return fmt.Sprintf("%.*X", crc32.Size<<1, h.Sum(nil)), info, nil
}
