package jsonexport

// writeMetadata emits the metadata object every file's top level
// carries (§6.3): export_timestamp, export_version, total_allocations,
// active_allocations, source. Callers write the surrounding braces;
// writeMetadata writes only the "metadata":{...} pair plus a trailing
// comma, since it is always followed by at least one more top-level
// key.
func writeMetadata(j *jwriter, exportTimestampNS uint64, total int, active int, source Source) {
	j.key("metadata")
	j.objStart()
	j.key("export_timestamp")
	j.u64(exportTimestampNS)
	j.comma()
	j.key("export_version")
	j.str(exportVersion)
	j.comma()
	j.key("total_allocations")
	j.i(total)
	j.comma()
	j.key("active_allocations")
	j.i(active)
	j.comma()
	j.key("source")
	j.str(string(source))
	j.objEnd()
	j.comma()
}
