package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// SRARunInfo reads run tables from the NCBI SRA runinfo endpoint. It reports no checksums.
type SRARunInfo struct {
	BaseURL string
	Client  *http.Client
}

// NewSRARunInfo creates an NCBI runinfo source.
func NewSRARunInfo(baseURL string, client *http.Client) *SRARunInfo {
	return &SRARunInfo{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

func (s *SRARunInfo) Name() string { return "ncbi" }

var runInfoColumns = map[string]string{
	"Run":             "run_accession",
	"download_path":   "fastq_ftp",
	"ScientificName":  "scientific_name",
	"Platform":        "instrument_platform",
	"Model":           "instrument_model",
	"LibraryLayout":   "library_layout",
	"LibraryStrategy": "library_strategy",
	"LibrarySource":   "library_source",
	"BioSample":       "sample_accession",
	"Experiment":      "experiment_accession",
	"BioProject":      "study_accession",
}

// Runs fetches the runinfo CSV of project and maps it onto the ENA column names.
func (s *SRARunInfo) Runs(ctx context.Context, project string) (*Table, error) {
	q := url.Values{}
	q.Set("acc", project)

	body, err := get(ctx, s.Client, s.BaseURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := decode(body, ',')
	if err != nil {
		return nil, fmt.Errorf("failed to parse runinfo: %w", err)
	}

	t := &Table{}

	for _, r := range raw.Runs {
		// runinfo repeats its header between result pages
		if r.Extra["Run"] == "" || r.Extra["Run"] == "Run" {
			continue
		}

		var run Run
		for from, to := range runInfoColumns {
			if v, ok := r.Extra[from]; ok {
				run.set(to, v)
			}
		}

		t.Runs = append(t.Runs, run)
	}

	return t, nil
}
