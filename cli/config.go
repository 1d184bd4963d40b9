package cli

import (
	"github.com/coder/serpent"
	"github.com/searchd/analytics/analytics"
)

const (
	envDevelopment = "development"
	envProduction  = "production"
)

// instanceFlags describe the searchd instance being reported on. They are
// shared by the commands that build a trait snapshot.
type instanceFlags struct {
	dbPath               string
	env                  string
	maxIndexSize         uint64
	maxTaskDBSize        uint64
	httpPayloadSizeLimit uint64
	scheduleSnapshot     bool
	enableMetrics        bool
	scoreDetails         bool
	vectorStore          bool
}

func (f *instanceFlags) dbPathOption() serpent.Option {
	return serpent.Option{
		Name:        "Database Path",
		Flag:        "db-path",
		Env:         envPrefix + "DB_PATH",
		Default:     "./data.ms",
		Description: "Directory of the searchd database. The installation identity is stored here.",
		Value:       serpent.StringOf(&f.dbPath),
	}
}

func (f *instanceFlags) options() serpent.OptionSet {
	return serpent.OptionSet{
		f.dbPathOption(),
		{
			Name:        "Environment",
			Flag:        "env",
			Env:         envPrefix + "ENV",
			Default:     envDevelopment,
			Description: "Environment searchd runs in.",
			Value:       serpent.EnumOf(&f.env, envDevelopment, envProduction),
		},
		{
			Name:        "Max Index Size",
			Flag:        "max-index-size",
			Env:         envPrefix + "MAX_INDEX_SIZE",
			Default:     "100 GiB",
			Description: "Maximum size of an index, as configured on the instance.",
			Value:       ByteSizeOf(&f.maxIndexSize),
		},
		{
			Name:        "Max Task DB Size",
			Flag:        "max-task-db-size",
			Env:         envPrefix + "MAX_TASK_DB_SIZE",
			Default:     "100 GiB",
			Description: "Maximum size of the task database, as configured on the instance.",
			Value:       ByteSizeOf(&f.maxTaskDBSize),
		},
		{
			Name:        "HTTP Payload Size Limit",
			Flag:        "http-payload-size-limit",
			Env:         envPrefix + "HTTP_PAYLOAD_SIZE_LIMIT",
			Default:     "100 MB",
			Description: "Maximum accepted payload size, as configured on the instance.",
			Value:       ByteSizeOf(&f.httpPayloadSizeLimit),
		},
		{
			Name:        "Schedule Snapshot",
			Flag:        "schedule-snapshot",
			Env:         envPrefix + "SCHEDULE_SNAPSHOT",
			Description: "Whether the instance takes scheduled snapshots.",
			Value:       serpent.BoolOf(&f.scheduleSnapshot),
		},
		{
			Name:        "Experimental Enable Metrics",
			Flag:        "experimental-enable-metrics",
			Env:         envPrefix + "EXPERIMENTAL_ENABLE_METRICS",
			Description: "Whether the instance exposes its metrics route.",
			Value:       serpent.BoolOf(&f.enableMetrics),
		},
		{
			Name:        "Experimental Score Details",
			Flag:        "experimental-score-details",
			Env:         envPrefix + "EXPERIMENTAL_SCORE_DETAILS",
			Description: "Whether score details are enabled on the instance.",
			Value:       serpent.BoolOf(&f.scoreDetails),
		},
		{
			Name:        "Experimental Vector Store",
			Flag:        "experimental-vector-store",
			Env:         envPrefix + "EXPERIMENTAL_VECTOR_STORE",
			Description: "Whether the vector store is enabled on the instance.",
			Value:       serpent.BoolOf(&f.vectorStore),
		},
	}
}

func (f *instanceFlags) instanceConfig() analytics.InstanceConfig {
	return analytics.InstanceConfig{
		Environment:          f.env,
		MaxIndexSize:         f.maxIndexSize,
		MaxTaskDBSize:        f.maxTaskDBSize,
		HTTPPayloadSizeLimit: f.httpPayloadSizeLimit,
		SnapshotEnabled:      f.scheduleSnapshot,
		MetricsEnabled:       f.enableMetrics,
	}
}

func (f *instanceFlags) runtimeFeatures() analytics.RuntimeFeatures {
	return analytics.RuntimeFeatures{
		ScoreDetails: f.scoreDetails,
		VectorStore:  f.vectorStore,
	}
}

// traitCollector builds a collector for the configured instance.
func (f *instanceFlags) traitCollector() *analytics.TraitCollector {
	return analytics.NewTraitCollector(f.instanceConfig(),
		analytics.WithRuntimeFeatures(f.runtimeFeatures),
	)
}
