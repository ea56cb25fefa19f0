package invoicing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Predefined number patterns
const (
	PatternStandard = "{tenant_abbr}-{year}-{seq:06d}"
	PatternSimple   = "{year}/{seq:04d}"
	PatternWithType = "{type_abbr}/{year}/{seq:05d}"
	PatternFull     = "{tenant_abbr}-{type_abbr}-{year}-{month:02d}-{seq:05d}"
)

// DefaultTenantAbbreviation is used when no abbreviation is configured for a tenant
const DefaultTenantAbbreviation = "TENANT"

var namedPatterns = map[string]string{
	"standard":  PatternStandard,
	"simple":    PatternSimple,
	"with_type": PatternWithType,
	"full":      PatternFull,
}

const (
	fieldTenantAbbr = "tenant_abbr"
	fieldTypeAbbr   = "type_abbr"
	fieldYear       = "year"
	fieldMonth      = "month"
	fieldSeq        = "seq"
	fieldSeries     = "series"
)

// NumberFields are the values a NumberPattern can reference
type NumberFields struct {
	TenantAbbr string
	TypeAbbr   string
	Year       int
	Month      int
	Sequence   int64
	Series     string
}

type patternSegment struct {
	literal string
	field   string
	width   int
}

// NumberPattern is a parsed document number template such as
// "{tenant_abbr}-{year}-{seq:06d}". Numeric fields accept a zero-padded
// width spec of the form ":0Nd".
type NumberPattern struct {
	raw      string
	segments []patternSegment
}

// ParsePattern parses a pattern by name ("standard", "simple", "with_type",
// "full") or as a literal template.
func ParsePattern(pattern string) (NumberPattern, error) {
	if named, ok := namedPatterns[pattern]; ok {
		pattern = named
	}
	p := NumberPattern{raw: pattern}
	rest := pattern
	for len(rest) > 0 {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			p.segments = append(p.segments, patternSegment{literal: rest})
			break
		}
		if open > 0 {
			p.segments = append(p.segments, patternSegment{literal: rest[:open]})
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return NumberPattern{}, fmt.Errorf("unclosed placeholder in pattern %q", pattern)
		}
		seg, err := parsePlaceholder(rest[open+1 : open+closing])
		if err != nil {
			return NumberPattern{}, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		p.segments = append(p.segments, seg)
		rest = rest[open+closing+1:]
	}
	if !p.references(fieldSeq) {
		return NumberPattern{}, fmt.Errorf("pattern %q does not reference {seq}", pattern)
	}
	return p, nil
}

func parsePlaceholder(body string) (patternSegment, error) {
	name, spec, hasSpec := strings.Cut(body, ":")
	switch name {
	case fieldTenantAbbr, fieldTypeAbbr, fieldSeries:
		if hasSpec {
			return patternSegment{}, fmt.Errorf("field {%s} does not accept a format spec", name)
		}
		return patternSegment{field: name}, nil
	case fieldYear, fieldMonth, fieldSeq:
	default:
		return patternSegment{}, fmt.Errorf("unknown field {%s}", name)
	}
	if !hasSpec {
		return patternSegment{field: name}, nil
	}
	if !strings.HasSuffix(spec, "d") {
		return patternSegment{}, fmt.Errorf("unsupported format spec %q for {%s}", spec, name)
	}
	width, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSuffix(spec, "d"), "0"))
	if err != nil || width < 0 || width > 18 {
		return patternSegment{}, fmt.Errorf("unsupported format spec %q for {%s}", spec, name)
	}
	return patternSegment{field: name, width: width}, nil
}

// String returns the raw template
func (p NumberPattern) String() string {
	return p.raw
}

func (p NumberPattern) references(field string) bool {
	for _, s := range p.segments {
		if s.field == field {
			return true
		}
	}
	return false
}

// Format renders the pattern with the given values
func (p NumberPattern) Format(f NumberFields) string {
	var b strings.Builder
	for _, s := range p.segments {
		switch s.field {
		case "":
			b.WriteString(s.literal)
		case fieldTenantAbbr:
			b.WriteString(f.TenantAbbr)
		case fieldTypeAbbr:
			b.WriteString(f.TypeAbbr)
		case fieldSeries:
			b.WriteString(f.Series)
		case fieldYear:
			b.WriteString(padInt(int64(f.Year), s.width))
		case fieldMonth:
			b.WriteString(padInt(int64(f.Month), s.width))
		case fieldSeq:
			b.WriteString(padInt(f.Sequence, s.width))
		}
	}
	return b.String()
}

func padInt(v int64, width int) string {
	if width == 0 {
		return strconv.FormatInt(v, 10)
	}
	return fmt.Sprintf("%0*d", width, v)
}

// SerialCounterStore owns the per (tenant, year, series) counters.
// AllocateNextSerial must increment and return the new value in one atomic
// step; two concurrent callers never observe the same value.
type SerialCounterStore interface {
	AllocateNextSerial(ctx context.Context, tenantID uuid.UUID, year int, series string) (int64, error)
}

// NumberLookup reports whether a document number is already used by a tenant
type NumberLookup interface {
	ExistsByNumber(ctx context.Context, tenantID uuid.UUID, number string) (bool, error)
}

// TenantAbbreviationResolver maps a tenant to the short code used in numbers
type TenantAbbreviationResolver interface {
	Abbreviation(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// StaticAbbreviations resolves abbreviations from a fixed map
type StaticAbbreviations map[uuid.UUID]string

// Abbreviation implements TenantAbbreviationResolver
func (s StaticAbbreviations) Abbreviation(_ context.Context, tenantID uuid.UUID) (string, error) {
	if abbr, ok := s[tenantID]; ok && abbr != "" {
		return abbr, nil
	}
	return DefaultTenantAbbreviation, nil
}

// AllocatorConfig is the immutable numbering configuration
type AllocatorConfig struct {
	// DefaultPattern applies to tenants without an entry in TenantPatterns
	DefaultPattern string
	TenantPatterns map[uuid.UUID]string
}

// Allocator assigns document numbers. Sequence values come from the counter
// store; the allocator itself keeps no mutable state.
type Allocator struct {
	store          SerialCounterStore
	lookup         NumberLookup
	abbreviations  TenantAbbreviationResolver
	defaultPattern NumberPattern
	tenantPatterns map[uuid.UUID]NumberPattern
}

// NewAllocator validates every configured pattern up front, so a bad
// pattern is reported at startup rather than after a counter was consumed.
func NewAllocator(
	store SerialCounterStore,
	lookup NumberLookup,
	abbreviations TenantAbbreviationResolver,
	cfg AllocatorConfig,
) (*Allocator, error) {
	if cfg.DefaultPattern == "" {
		cfg.DefaultPattern = PatternStandard
	}
	def, err := ParsePattern(cfg.DefaultPattern)
	if err != nil {
		return nil, NewSerialNumberError(uuid.Nil, err.Error())
	}
	tenantPatterns := make(map[uuid.UUID]NumberPattern, len(cfg.TenantPatterns))
	for tenantID, raw := range cfg.TenantPatterns {
		p, err := ParsePattern(raw)
		if err != nil {
			return nil, NewSerialNumberError(tenantID, err.Error())
		}
		tenantPatterns[tenantID] = p
	}
	if abbreviations == nil {
		abbreviations = StaticAbbreviations{}
	}
	return &Allocator{
		store:          store,
		lookup:         lookup,
		abbreviations:  abbreviations,
		defaultPattern: def,
		tenantPatterns: tenantPatterns,
	}, nil
}

// WithStore returns a copy of the allocator drawing sequences from store.
// It is used to bind allocation to a surrounding transaction.
func (a *Allocator) WithStore(store SerialCounterStore) *Allocator {
	cp := *a
	cp.store = store
	return &cp
}

// PatternFor returns the pattern in effect for a tenant
func (a *Allocator) PatternFor(tenantID uuid.UUID) NumberPattern {
	if p, ok := a.tenantPatterns[tenantID]; ok {
		return p
	}
	return a.defaultPattern
}

// AllocateNumber draws the next sequence for (tenant, year of issueDate,
// series) and formats it. A series is only accepted when the pattern prints
// it, otherwise two series would render the same numbers. A failed increment is reported as an
// AllocationConflict error which the caller may retry.
func (a *Allocator) AllocateNumber(
	ctx context.Context,
	tenantID uuid.UUID,
	docType InvoiceType,
	issueDate time.Time,
	series string,
) (string, error) {
	pattern := a.PatternFor(tenantID)
	if series != "" && !pattern.references(fieldSeries) {
		return "", NewInvalidInvoiceDataError("series",
			"numbering pattern "+pattern.String()+" has no {series} field")
	}
	abbr, err := a.abbreviations.Abbreviation(ctx, tenantID)
	if err != nil {
		return "", NewSerialNumberError(tenantID, fmt.Sprintf("resolve tenant abbreviation: %v", err))
	}

	year := issueDate.Year()
	seq, err := a.store.AllocateNextSerial(ctx, tenantID, year, series)
	if err != nil {
		return "", NewAllocationConflictError(tenantID, year, series, err)
	}
	if seq <= 0 {
		return "", NewSerialNumberError(tenantID, fmt.Sprintf("counter returned non-positive sequence %d", seq))
	}

	return pattern.Format(NumberFields{
		TenantAbbr: abbr,
		TypeAbbr:   docType.Abbreviation(),
		Year:       year,
		Month:      int(issueDate.Month()),
		Sequence:   seq,
		Series:     series,
	}), nil
}

// ValidateNumber reports whether number is still unused for the tenant.
// It is informational only; allocation never consults it.
func (a *Allocator) ValidateNumber(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	if a.lookup == nil {
		return false, NewSerialNumberError(tenantID, "number lookup not configured")
	}
	exists, err := a.lookup.ExistsByNumber(ctx, tenantID, number)
	if err != nil {
		return false, fmt.Errorf("failed to look up invoice number: %w", err)
	}
	return !exists, nil
}
