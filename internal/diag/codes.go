package diag

import (
	"fmt"
)

type Code uint16

const (
	// Неизвестная ошибка
	UnknownCode Code = 0

	// Сканер фрагментов
	ScanInfo             Code = 1000
	ScanUnbalanced       Code = 1001
	ScanNoOpening        Code = 1002
	ScanSuffixMismatch   Code = 1003
	ScanEditConflict     Code = 1004
	ScanEditGuardFailure Code = 1005

	// Ввод-вывод
	IOInfo         Code = 2000
	IOReadFailure  Code = 2001
	IOWriteFailure Code = 2002
	IONotUTF8      Code = 2003

	// Миграционные патчи
	PatchInfo       Code = 3000
	PatchNoMatch    Code = 3001
	PatchBadPattern Code = 3002
)

var (
	codeDescription = map[Code]string{
		UnknownCode:          "Unknown error",
		ScanInfo:             "Scanner information",
		ScanUnbalanced:       "Fragment delimiters never balance before end of text",
		ScanNoOpening:        "Prefix marker is not followed by the opening delimiter",
		ScanSuffixMismatch:   "Balanced fragment is not followed by the suffix marker",
		ScanEditConflict:     "Rewrite overlaps another rewrite in the same file",
		ScanEditGuardFailure: "Text under rewrite does not match the scanned fragment",
		IOInfo:               "I/O information",
		IOReadFailure:        "File could not be read",
		IOWriteFailure:       "File could not be written",
		IONotUTF8:            "File is not valid UTF-8 text",
		PatchInfo:            "Migration patch information",
		PatchNoMatch:         "Migration patch search pattern did not match",
		PatchBadPattern:      "Migration patch search pattern does not compile",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("SCN%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("IO%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("PAT%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
