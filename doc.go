// Package cstm is the root of the CSTM module: a single-file columnar
// storage format and the tools around it.
//
// A CSTM file holds a table as one independently compressed block per
// column behind a fixed preamble and a header describing every block, so a
// reader can decompress just the columns it needs.
//
// # Layout
//
//	0x00  "CSTM"                 magic
//	0x04  u8 version             currently 1
//	0x05  7 reserved bytes       zero
//	0x0C  u64 header length H    little endian
//	0x14  header (H bytes)       schema signature, row count, descriptors
//	...   column blocks          zlib streams, back to back
//
// # Packages
//
//   - pkg/cstm: header and block codecs, Writer and Reader
//   - pkg/cstmerrors: typed errors shared by every package
//   - pkg/compression: zlib block compression and stream compressors for exports
//   - pkg/csvio and pkg/json: CSV import and CSV/JSON export
//   - pkg/config, pkg/logger, pkg/metrics, pkg/observability: configuration,
//     zap logging, Prometheus metrics and OpenTelemetry tracing
//   - pkg/mmap, pkg/pool, pkg/performance: memory-mapped reads, buffer
//     pooling, resource measurement and profiling
//
// # Quick Start
//
//	cols := []cstm.Column{
//	    cstm.Int32Column("id", 1, 2, 3),
//	    cstm.StringColumn("name", "a", "", "bc"),
//	}
//	if _, err := cstm.WriteFile(ctx, "t.cstm", cols, cstm.WithAutoSchemaSignature()); err != nil {
//	    return err
//	}
//
//	r, err := cstm.Open("t.cstm")
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	names, err := r.ReadColumn(ctx, "name")
//
// The cstm command in cmd/cstm converts between CSV and CSTM, exports JSON,
// inspects files and benchmarks selective reads.
package cstm
