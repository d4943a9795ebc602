package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"

	"stream-chat/errors"
)

//go:embed banned/*
var bannedFolder embed.FS

// LoadBannedTerms reads the embedded banned-term dictionaries.
// Each .txt file under banned/ is one language dictionary, one term per line.
func LoadBannedTerms() ([]string, error) {
	entries, err := fs.ReadDir(bannedFolder, "banned")
	if err != nil {
		return nil, err
	}

	unique := make(map[string]struct{})
	var terms []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := bannedFolder.ReadFile("banned/" + entry.Name())
		if err != nil {
			return nil, err
		}

		// A scanner handles both \n and \r\n line endings.
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			term := strings.ToLower(strings.TrimSpace(scanner.Text()))
			if term == "" {
				continue
			}
			if _, ok := unique[term]; ok {
				continue
			}
			unique[term] = struct{}{}
			terms = append(terms, term)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(terms) == 0 {
		return nil, errors.ErrEmptyWords
	}
	return terms, nil
}
