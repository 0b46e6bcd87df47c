package config

// mergeStageOverrides merges built-in and user-defined per-stage
// threshold overrides. User-defined entries override built-in entries
// with the same stage number; fields the user leaves nil fall back to
// whatever the built-in entry (if any) already set.
func mergeStageOverrides(builtin, user map[int]StageConfig) map[int]StageConfig {
	result := make(map[int]StageConfig, len(builtin)+len(user))

	for n, sc := range builtin {
		result[n] = sc
	}

	for n, userSC := range user {
		merged := result[n]
		if userSC.ConfidenceThreshold != nil {
			merged.ConfidenceThreshold = userSC.ConfidenceThreshold
		}
		if userSC.EntropyThreshold != nil {
			merged.EntropyThreshold = userSC.EntropyThreshold
		}
		if userSC.MaxProcessingTimeMS != nil {
			merged.MaxProcessingTimeMS = userSC.MaxProcessingTimeMS
		}
		result[n] = merged
	}

	return result
}
