package exception

import "github.com/yanun0323/errors"

// Book errors. CompactionRequired is internal and always handled by
// end_packet; it is never surfaced past the book package.
var (
	ErrInvalidPrice       = errors.New("book: invalid price")
	ErrCompactionRequired = errors.New("book: compaction required")
)
