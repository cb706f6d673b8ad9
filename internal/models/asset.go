package models

// AssetType declares the semantic role of a source image.
type AssetType string

const (
	AssetLogo   AssetType = "logo"
	AssetSplash AssetType = "splash"
	AssetIcon   AssetType = "icon"
	AssetBrand  AssetType = "brand"
	AssetCustom AssetType = "custom"
)

// Asset references one source image. Owned by the job that references it;
// read-only to the pipeline.
type Asset struct {
	Type      AssetType `json:"type"`
	SourceRef string    `json:"source_ref"` // path or blob id
	MIMEType  string    `json:"mime_type,omitempty"`
	Name      string    `json:"name,omitempty"` // custom assets: resource name
}

// Variant describes one produced size/format combination of an asset.
type Variant struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Format     string `json:"format"`
	ByteSize   int64  `json:"byte_size"`
	OutputPath string `json:"output_path"`
}

// Optimization records size reduction and scoring for a processed asset.
type Optimization struct {
	OriginalSize     int64   `json:"original_size"`
	FinalSize        int64   `json:"final_size"`
	CompressionRatio float64 `json:"compression_ratio"` // percent reduction
	QualityScore     float64 `json:"quality_score"`
}

// ProcessedAsset is the output of a single asset transform. New pipeline
// runs replace, never patch, an existing ProcessedAsset.
type ProcessedAsset struct {
	Type         AssetType          `json:"type"`
	Name         string             `json:"name,omitempty"` // custom assets: resource name
	SourceRef    string             `json:"source_ref"`
	Variants     map[string]Variant `json:"variants"` // variant key (density etc.) -> output
	Optimization Optimization       `json:"optimization"`
	Generated    bool               `json:"generated,omitempty"`     // true for synthesized placeholders
	SourceFormat string             `json:"source_format,omitempty"` // set when outside the allow-list
}

// PipelineResult aggregates per-asset outputs for one job. ProcessedAssets
// holds one entry per processed source, so several custom assets may share
// the custom type.
type PipelineResult struct {
	Success          bool              `json:"success"`
	ProcessedAssets  []*ProcessedAsset `json:"processed_assets"`
	Errors           []string          `json:"errors,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
	QualityScore     float64           `json:"quality_score"`
}

// Asset returns the first processed asset of the given type, or nil. Custom
// assets are not unique per type; iterate ProcessedAssets for those.
func (r *PipelineResult) Asset(t AssetType) *ProcessedAsset {
	for _, pa := range r.ProcessedAssets {
		if pa.Type == t {
			return pa
		}
	}
	return nil
}

// InjectionKind categorizes the file a point mutates.
type InjectionKind string

const (
	InjectResource    InjectionKind = "resource"
	InjectManifest    InjectionKind = "manifest"
	InjectCode        InjectionKind = "code"
	InjectBuildConfig InjectionKind = "buildConfig"
)

// InjectionAction selects the mutation semantics.
type InjectionAction string

const (
	ActionReplace InjectionAction = "replace" // requires Placeholder present in target
	ActionAppend  InjectionAction = "append"  // not idempotent; never re-run on a workspace
	ActionInsert  InjectionAction = "insert"  // anchored insert; creates skeleton if file missing
)

// InjectionPoint is a declarative mutation of one workspace file.
type InjectionPoint struct {
	TargetFile  string          `json:"target_file"` // workspace-relative
	Kind        InjectionKind   `json:"kind"`
	Action      InjectionAction `json:"action"`
	Content     string          `json:"content"`
	Placeholder string          `json:"placeholder,omitempty"`
}

// InjectionPlan is the ordered set of points derived from a PipelineResult.
type InjectionPlan struct {
	JobID     string           `json:"job_id"`
	PartnerID string           `json:"partner_id"`
	Points    []InjectionPoint `json:"points"`
}
