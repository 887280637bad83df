// Package normalisers provides implementations of the Normaliser interface
// for the uploaded file formats. Each normaliser knows how to extract text
// blocks from a specific file extension.
//
// Normalisers are registered with the Registry at startup. Files whose
// extension no normaliser claims produce no content.
package normalisers
