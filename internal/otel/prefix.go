package otel

// PrefixIngest namespaces every metric this service emits.
const PrefixIngest = "rtms_ingest"
