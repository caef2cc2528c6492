package tui

import (
	"strings"

	"erc20idx/pkg/models"
	"erc20idx/pkg/utils"
)

// displayBalance groups the integer digits, or masks the value in privacy mode.
func (m model) displayBalance(balance string) string {
	if m.privacyMode {
		return "****"
	}
	return utils.AddCommas(balance)
}

func (m model) maskAddress(addr string) string {
	if m.privacyMode && strings.HasPrefix(addr, "0x") {
		return "0x**...**"
	}
	return addr
}

func chunkRecords(records []models.DisplayRecord, size int) [][]models.DisplayRecord {
	if size <= 0 {
		size = 1
	}
	var chunks [][]models.DisplayRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}
