package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultENAFields are requested from the ENA portal filereport endpoint.
var DefaultENAFields = []string{
	"study_accession",
	"sample_accession",
	"experiment_accession",
	"run_accession",
	"tax_id",
	"scientific_name",
	"instrument_platform",
	"instrument_model",
	"library_layout",
	"library_strategy",
	"library_source",
	"library_selection",
	"read_count",
	"base_count",
	"first_public",
	"fastq_bytes",
	"fastq_md5",
	"fastq_ftp",
	"sample_title",
}

// ENAPortal reads run tables from the ENA portal API.
type ENAPortal struct {
	BaseURL string
	Client  *http.Client
	Fields  []string
}

// NewENAPortal creates an ENA portal source.
func NewENAPortal(baseURL string, client *http.Client) *ENAPortal {
	return &ENAPortal{BaseURL: strings.TrimRight(baseURL, "/"), Client: client, Fields: DefaultENAFields}
}

func (p *ENAPortal) Name() string { return "ena" }

// Runs fetches the read_run filereport of project as TSV.
func (p *ENAPortal) Runs(ctx context.Context, project string) (*Table, error) {
	q := url.Values{}
	q.Set("accession", project)
	q.Set("result", "read_run")
	q.Set("fields", strings.Join(p.Fields, ","))
	q.Set("format", "tsv")
	q.Set("download", "true")
	q.Set("limit", "0")

	body, err := get(ctx, p.Client, p.BaseURL+"/filereport?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer body.Close()

	t, err := decode(body, '\t')
	if err != nil {
		return nil, fmt.Errorf("failed to parse filereport: %w", err)
	}

	return t, nil
}
