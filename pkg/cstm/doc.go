// Package cstm reads and writes CSTM files, a single-file columnar format
// with one zlib-compressed block per column and a header that records where
// every block lives.
//
// # File Layout
//
//	0x00  4B  magic "CSTM"
//	0x04  1B  version (1)
//	0x05  7B  reserved, zero
//	0x0C  8B  header length H, little-endian
//	0x14  H   header
//	...       column blocks, back to back
//
// The header lists the schema signature, the row count and, for each column,
// its name, type, value count, block offset and compressed and uncompressed
// sizes. All integers are little-endian.
//
// # Writing
//
// A Writer reserves the header first, streams the blocks and then overwrites
// the reserved bytes with the final header. Header length depends only on the
// column names, so the patch always fits:
//
//	cols := []cstm.Column{
//	    cstm.Int32Column("id", 1, 2, 3),
//	    cstm.StringColumn("name", "a", "", "bc"),
//	}
//	hdr, err := cstm.WriteFile(ctx, "data.cstm", cols, cstm.WithAutoSchemaSignature())
//
// # Reading
//
// Open parses the header once. ReadColumn touches only the requested block:
//
//	r, err := cstm.Open("data.cstm")
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	names, err := r.ReadColumn(ctx, "name")
//
// WithConcurrency spreads block compression on write, and decompression in
// ReadAll, over several workers. The bytes on disk do not change.
//
// Errors are *cstmerrors.Error values; see package cstmerrors for the
// categories.
package cstm
