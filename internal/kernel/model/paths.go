package model

import "fmt"

// Canonical object-name templates from spec §6. Every stage that writes or
// reads an object goes through these so a path never drifts between
// producer and consumer.

// ProcessedPagePath is where Stage A puts a rendered page.
func ProcessedPagePath(invoiceID string, pageIndex int) string {
	return fmt.Sprintf("%s/page-%03d.png", invoiceID, pageIndex)
}

// ClassifiedPagePath is where Stage B copies a page once the vendor is known.
func ClassifiedPagePath(vendor VendorType, invoiceID string, pageIndex int) string {
	return fmt.Sprintf("%s/%s/page-%03d.png", vendor, invoiceID, pageIndex)
}

// ExtractedPath is where Stage C writes the serialized extraction.
func ExtractedPath(vendor VendorType, invoiceID string) string {
	return fmt.Sprintf("%s/%s.json", vendor, invoiceID)
}

// ArchivePath is where Stage D copies the original landing object.
func ArchivePath(year, month, day int, sourceName string) string {
	return fmt.Sprintf("%04d/%02d/%02d/%s", year, month, day, sourceName)
}

// FailedPath is where any stage quarantines a permanently-failed object.
func FailedPath(reason, date, name string) string {
	return fmt.Sprintf("%s/%s/%s", reason, date, name)
}

// FailedDLQPath is where the DLQ processor writes a quarantine record.
func FailedDLQPath(originStage, date, messageID string) string {
	return fmt.Sprintf("dlq/%s/%s/%s.json", originStage, date, messageID)
}
