// Package ocr adapts an external text-extraction binary to the extraction
// capability used by the pipeline workers.
package ocr
