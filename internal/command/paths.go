package command

// Paths are the file names derived from one artifact stem.
type Paths struct {
	Stem       string `json:"stem"`
	Plain      string `json:"plain"`
	Compressed string `json:"compressed"`
	Canary     string `json:"canary"`
	Verify     string `json:"verify"`
	Lock       string `json:"lock"`
	// Manifests are the manifest names a compressed artifact may have left
	// behind, flagged or not.
	Manifests []string `json:"manifests"`
}

// PathsFor derives every artifact name from stem. The canary file carries a
// .gz suffix when the canary pipeline compresses.
func PathsFor(stem string, compressedCanary bool) Paths {
	canary := stem + "_test.csv"
	if compressedCanary {
		canary += ".gz"
	}
	return Paths{
		Stem:       stem,
		Plain:      stem + ".csv",
		Compressed: stem + ".csv.gz",
		Canary:     canary,
		Verify:     stem + "_temp_verify.csv",
		Lock:       stem + ".lock",
		Manifests:  []string{stem + ".csv.manifest", stem + ".csv.manifest.error"},
	}
}
