// Package taxonomy generates the tag strings of placements and creatives.
//
// A taxonomy set is up to six template strings ("levels") such as
//
//	<[TC_Publisher:code]_[TC_Market:code]>-[PL_Audience:display_fr]
//
// Variable tokens resolve against the campaign tree and the shortcode
// tables; group tokens collapse to nothing when all their variables are
// empty. Regeneration computes a field patch and never writes it.
package taxonomy

import (
	"strconv"
	"strings"
)

// Format selects how a resolved shortcode is rendered.
type Format string

const (
	FormatCode       Format = "code"
	FormatDisplayFR  Format = "display_fr"
	FormatDisplayEN  Format = "display_en"
	FormatUTM        Format = "utm"
	FormatCustomUTM  Format = "custom_utm"
	FormatCustomCode Format = "custom_code"
	FormatOpen       Format = "open"
)

// RequiresShortcode reports whether a raw string value rendered in this
// format is a shortcode id to look up.
func (f Format) RequiresShortcode() bool {
	return f != FormatOpen
}

// usesCustomCode reports whether rendering needs the client's custom code.
func (f Format) usesCustomCode() bool {
	return f == FormatCustomUTM || f == FormatCustomCode
}

// Shortcode is a globally shared lookup entry stored at shortcodes/{id}.
type Shortcode struct {
	ID            string `json:"-"`
	Code          string `json:"SH_Code"`
	DisplayNameFR string `json:"SH_Display_Name_FR"`
	DisplayNameEN string `json:"SH_Display_Name_EN,omitempty"`
	DefaultUTM    string `json:"SH_Default_UTM,omitempty"`
}

// Template levels stored on a taxonomy set document.
const MaxLevels = 6

// TemplateSet is one taxonomy set stored at clients/{c}/taxonomies/{id}.
// Levels are indexed 1..6; missing levels are empty.
type TemplateSet struct {
	ID     string
	Levels [MaxLevels]string
}

// Level returns the template of a 1-based level.
func (t *TemplateSet) Level(n int) string {
	if t == nil || n < 1 || n > MaxLevels {
		return ""
	}
	return t.Levels[n-1]
}

// levelField is the document field holding a 1-based level template.
func levelField(n int) string {
	return "NA_Name_Level_" + strconv.Itoa(n)
}

// Patch is the flat field patch produced for one placement or creative.
type Patch map[string]any

// Summary kinds written under *_Generated_Taxonomies.
const (
	KindTags       = "tags"
	KindPlatform   = "platform"
	KindMediaOcean = "mediaocean"
)

// taxonomyKind binds a summary key to the prefix of its per-level fields.
type taxonomyKind struct {
	key   string
	field string
}

var taxonomyKinds = []taxonomyKind{
	{key: KindTags, field: "Tag"},
	{key: KindPlatform, field: "Plateforme"},
	{key: KindMediaOcean, field: "MO"},
}

// Levels generated for each entity kind.
var (
	PlacementLevels = []int{1, 2, 3, 4}
	CreativeLevels  = []int{5, 6}
)

// joinNonEmpty joins the non-empty values with sep.
func joinNonEmpty(values []string, sep string) string {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, sep)
}
