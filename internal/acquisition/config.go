package acquisition

type Config struct {
	// StagingPath is where fetched media lands before (and after)
	// passing the quality gate. Each job stages under its own subdir.
	StagingPath string `yaml:"staging_path" env:"ACQUISITION_STAGING_PATH" env-default:".mediasift/staging"`

	// SnapshotPath holds the per-job flat-file status mirrors.
	SnapshotPath string `yaml:"snapshot_path" env:"ACQUISITION_SNAPSHOT_PATH" env-default:".mediasift/snapshots"`

	// JobParallelism is how many jobs may run concurrently. Items within
	// a job are always processed sequentially so the per-job progress
	// accounting stays single-writer.
	JobParallelism int `yaml:"job_parallelism" env:"ACQUISITION_JOB_PARALLELISM" env-default:"2"`

	// SearchPageSize is the Take used when enumerating catalog items.
	SearchPageSize int `yaml:"search_page_size" env:"ACQUISITION_SEARCH_PAGE_SIZE" env-default:"50"`
}
