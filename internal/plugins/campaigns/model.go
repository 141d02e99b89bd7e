// Package campaigns models the campaign tree a client's media plan lives in:
//
//	campaign → version → tab (onglet) → section → tactic → placement → creative
//
// Campaigns, tactics, placements and creatives are typed; their documents
// may also carry template-defined custom fields, kept in each entity's
// Extra map. Versions, tabs and sections are structural only.
//
// This plugin is read-only; creating and editing documents belongs to the
// CRUD layer.
package campaigns

import (
	"fmt"
	"strings"

	"github.com/keyxmakerx/mediatag/internal/docstore"
)

// Collection names, in tree order.
const (
	CollClients    = "clients"
	CollCampaigns  = "campaigns"
	CollVersions   = "versions"
	CollTabs       = "onglets"
	CollSections   = "sections"
	CollTactics    = "tactiques"
	CollPlacements = "placements"
	CollCreatives  = "creatifs"
)

// treeCollections lists the collections below a client, in order.
var treeCollections = []string{
	CollCampaigns, CollVersions, CollTabs, CollSections,
	CollTactics, CollPlacements, CollCreatives,
}

// Ref locates a document in the campaign tree. Fields below the deepest
// level are empty.
type Ref struct {
	ClientID    string `json:"clientId"`
	CampaignID  string `json:"campaignId,omitempty"`
	VersionID   string `json:"versionId,omitempty"`
	TabID       string `json:"tabId,omitempty"`
	SectionID   string `json:"sectionId,omitempty"`
	TacticID    string `json:"tacticId,omitempty"`
	PlacementID string `json:"placementId,omitempty"`
	CreativeID  string `json:"creativeId,omitempty"`
}

// ids returns the tree ids below the client, in tree order.
func (r Ref) ids() []string {
	return []string{r.CampaignID, r.VersionID, r.TabID, r.SectionID, r.TacticID, r.PlacementID, r.CreativeID}
}

// Depth returns how many tree levels below the client are set.
func (r Ref) Depth() int {
	n := 0
	for _, id := range r.ids() {
		if id == "" {
			break
		}
		n++
	}
	return n
}

// ID returns the id of the deepest set level, or the client id.
func (r Ref) ID() string {
	d := r.Depth()
	if d == 0 {
		return r.ClientID
	}
	return r.ids()[d-1]
}

// Kind returns the collection name of the deepest set level.
func (r Ref) Kind() string {
	d := r.Depth()
	if d == 0 {
		return CollClients
	}
	return treeCollections[d-1]
}

// Path returns the document path of the deepest set level.
func (r Ref) Path() string {
	segs := []string{CollClients, r.ClientID}
	for i, id := range r.ids() {
		if id == "" {
			break
		}
		segs = append(segs, treeCollections[i], id)
	}
	return docstore.Join(segs...)
}

// Child returns the path of the named child collection under r.
func (r Ref) Child(collection string) string {
	return docstore.Join(r.Path(), collection)
}

// Truncate returns r cut down to depth levels below the client.
func (r Ref) Truncate(depth int) Ref {
	out := Ref{ClientID: r.ClientID}
	ids := r.ids()
	set := []*string{&out.CampaignID, &out.VersionID, &out.TabID, &out.SectionID, &out.TacticID, &out.PlacementID, &out.CreativeID}
	for i := 0; i < depth && i < len(ids); i++ {
		*set[i] = ids[i]
	}
	return out
}

// With returns a copy of r extended with the id of the next level.
func (r Ref) With(id string) Ref {
	d := r.Depth()
	out := r.Truncate(d)
	set := []*string{&out.CampaignID, &out.VersionID, &out.TabID, &out.SectionID, &out.TacticID, &out.PlacementID, &out.CreativeID}
	if d < len(set) {
		*set[d] = id
	}
	return out
}

// ParseRef parses a document path of the campaign tree.
func ParseRef(path string) (Ref, error) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) < 2 || len(segs)%2 != 0 || segs[0] != CollClients || segs[1] == "" {
		return Ref{}, fmt.Errorf("invalid campaign tree path %q", path)
	}
	ref := Ref{ClientID: segs[1]}
	for i := 2; i < len(segs); i += 2 {
		level := i/2 - 1
		if level >= len(treeCollections) || segs[i] != treeCollections[level] || segs[i+1] == "" {
			return Ref{}, fmt.Errorf("invalid campaign tree path %q", path)
		}
		ref = ref.With(segs[i+1])
	}
	return ref, nil
}

// --- Taxonomy values ---

// TaxonomyValue is a value stored on a placement or creative for one
// taxonomy variable. Exactly one shape is used:
//
//	{format: "open", openValue}   free text
//	{shortcodeId, value}          a picked shortcode
//	{value}                       plain text
type TaxonomyValue struct {
	Format      string `json:"format,omitempty"`
	OpenValue   string `json:"openValue,omitempty"`
	ShortcodeID string `json:"shortcodeId,omitempty"`
	Value       string `json:"value,omitempty"`
}

// --- Entities ---

// Campaign is the top of the tree.
type Campaign struct {
	Ref   Ref            `json:"-"`
	Extra map[string]any `json:"-"`

	Name         string  `json:"CA_Name,omitempty"`
	Identifier   string  `json:"CA_Campaign_Identifier,omitempty"`
	Year         string  `json:"CA_Year,omitempty"`
	Quarter      string  `json:"CA_Quarter,omitempty"`
	Division     string  `json:"CA_Division,omitempty"`
	ClientExtID  string  `json:"CA_Client_Ext_Id,omitempty"`
	PO           string  `json:"CA_PO,omitempty"`
	BillingID    string  `json:"CA_Billing_ID,omitempty"`
	CustomDim1   string  `json:"CA_Custom_Dim_1,omitempty"`
	CustomDim2   string  `json:"CA_Custom_Dim_2,omitempty"`
	CustomDim3   string  `json:"CA_Custom_Dim_3,omitempty"`
	Budget       float64 `json:"CA_Budget,omitempty"`
	CurrencyCode string  `json:"CA_Currency,omitempty"`
}

// Field returns the value of a campaign field by its document name.
func (c *Campaign) Field(name string) (any, bool) {
	switch name {
	case "CA_Name":
		return c.Name, true
	case "CA_Campaign_Identifier":
		return c.Identifier, true
	case "CA_Year":
		return c.Year, true
	case "CA_Quarter":
		return c.Quarter, true
	case "CA_Division":
		return c.Division, true
	case "CA_Client_Ext_Id":
		return c.ClientExtID, true
	case "CA_PO":
		return c.PO, true
	case "CA_Billing_ID":
		return c.BillingID, true
	case "CA_Custom_Dim_1":
		return c.CustomDim1, true
	case "CA_Custom_Dim_2":
		return c.CustomDim2, true
	case "CA_Custom_Dim_3":
		return c.CustomDim3, true
	case "CA_Budget":
		return zeroAsNil(c.Budget), true
	case "CA_Currency":
		return c.CurrencyCode, true
	}
	v, ok := c.Extra[name]
	return v, ok
}

// Tactic is a line of the media plan inside a section.
type Tactic struct {
	Ref   Ref            `json:"-"`
	Extra map[string]any `json:"-"`

	Label             string  `json:"TC_Label,omitempty"`
	SectionID         string  `json:"TC_SectionId,omitempty"`
	Publisher         string  `json:"TC_Publisher,omitempty"`
	MediaType         string  `json:"TC_Media_Type,omitempty"`
	BuyingMethod      string  `json:"TC_Buying_Method,omitempty"`
	ProgBuyingMethod  string  `json:"TC_Prog_Buying_Method,omitempty"`
	Objective         string  `json:"TC_Media_Objective,omitempty"`
	Market            string  `json:"TC_Market,omitempty"`
	Language          string  `json:"TC_Language,omitempty"`
	Inventory         string  `json:"TC_Inventory,omitempty"`
	Kind              string  `json:"TC_Kind,omitempty"`
	BuyType           string  `json:"TC_Buy_Type,omitempty"`
	BuyCurrency       string  `json:"TC_BuyCurrency,omitempty"`
	MediaBudget       float64 `json:"TC_Media_Budget,omitempty"`
	CM360Volume       float64 `json:"TC_CM360_Volume,omitempty"`
	CM360Rate         float64 `json:"TC_CM360_Rate,omitempty"`
	DefaultLanguageID string  `json:"TC_Default_Language,omitempty"`
}

// Field returns the value of a tactic field by its document name.
func (t *Tactic) Field(name string) (any, bool) {
	switch name {
	case "TC_Label":
		return t.Label, true
	case "TC_SectionId":
		return t.SectionID, true
	case "TC_Publisher":
		return t.Publisher, true
	case "TC_Media_Type":
		return t.MediaType, true
	case "TC_Buying_Method":
		return t.BuyingMethod, true
	case "TC_Prog_Buying_Method":
		return t.ProgBuyingMethod, true
	case "TC_Media_Objective":
		return t.Objective, true
	case "TC_Market":
		return t.Market, true
	case "TC_Language":
		return t.Language, true
	case "TC_Inventory":
		return t.Inventory, true
	case "TC_Kind":
		return t.Kind, true
	case "TC_Buy_Type":
		return t.BuyType, true
	case "TC_BuyCurrency":
		return t.BuyCurrency, true
	case "TC_Media_Budget":
		return zeroAsNil(t.MediaBudget), true
	case "TC_CM360_Volume":
		return zeroAsNil(t.CM360Volume), true
	case "TC_CM360_Rate":
		return zeroAsNil(t.CM360Rate), true
	case "TC_Default_Language":
		return t.DefaultLanguageID, true
	}
	v, ok := t.Extra[name]
	return v, ok
}

// TaxonomyRefs holds the taxonomy-set ids an entity generates its tags from.
type TaxonomyRefs struct {
	Tags       string
	Platform   string
	MediaOcean string
}

// Placement is one buy inside a tactic.
type Placement struct {
	Ref   Ref            `json:"-"`
	Extra map[string]any `json:"-"`

	Label          string                   `json:"PL_Label,omitempty"`
	TacticID       string                   `json:"PL_TactiqueId,omitempty"`
	Audience       string                   `json:"PL_Audience,omitempty"`
	Product        string                   `json:"PL_Product,omitempty"`
	Location       string                   `json:"PL_Location,omitempty"`
	Format         string                   `json:"PL_Format,omitempty"`
	Language       string                   `json:"PL_Language,omitempty"`
	Device         string                   `json:"PL_Device,omitempty"`
	TaxonomyTags   string                   `json:"PL_Taxonomy_Tags,omitempty"`
	TaxonomyPlat   string                   `json:"PL_Taxonomy_Platform,omitempty"`
	TaxonomyMO     string                   `json:"PL_Taxonomy_MediaOcean,omitempty"`
	TaxonomyValues map[string]TaxonomyValue `json:"PL_Taxonomy_Values,omitempty"`
}

// Field returns the value of a placement field by its document name.
func (p *Placement) Field(name string) (any, bool) {
	switch name {
	case "PL_Label":
		return p.Label, true
	case "PL_TactiqueId":
		return p.TacticID, true
	case "PL_Audience":
		return p.Audience, true
	case "PL_Product":
		return p.Product, true
	case "PL_Location":
		return p.Location, true
	case "PL_Format":
		return p.Format, true
	case "PL_Language":
		return p.Language, true
	case "PL_Device":
		return p.Device, true
	}
	v, ok := p.Extra[name]
	return v, ok
}

// Taxonomies returns the taxonomy-set ids referenced by the placement.
func (p *Placement) Taxonomies() TaxonomyRefs {
	return TaxonomyRefs{Tags: p.TaxonomyTags, Platform: p.TaxonomyPlat, MediaOcean: p.TaxonomyMO}
}

// Creative is one ad asset inside a placement.
type Creative struct {
	Ref   Ref            `json:"-"`
	Extra map[string]any `json:"-"`

	Label          string                   `json:"CR_Label,omitempty"`
	PlacementID    string                   `json:"CR_PlacementId,omitempty"`
	Version        string                   `json:"CR_Version,omitempty"`
	Offer          string                   `json:"CR_Offer,omitempty"`
	CTA            string                   `json:"CR_CTA,omitempty"`
	FormatDetails  string                   `json:"CR_Format_Details,omitempty"`
	CustomDim1     string                   `json:"CR_Custom_Dim_1,omitempty"`
	TaxonomyTags   string                   `json:"CR_Taxonomy_Tags,omitempty"`
	TaxonomyPlat   string                   `json:"CR_Taxonomy_Platform,omitempty"`
	TaxonomyMO     string                   `json:"CR_Taxonomy_MediaOcean,omitempty"`
	TaxonomyValues map[string]TaxonomyValue `json:"CR_Taxonomy_Values,omitempty"`
}

// Field returns the value of a creative field by its document name.
func (c *Creative) Field(name string) (any, bool) {
	switch name {
	case "CR_Label":
		return c.Label, true
	case "CR_PlacementId":
		return c.PlacementID, true
	case "CR_Version":
		return c.Version, true
	case "CR_Offer":
		return c.Offer, true
	case "CR_CTA":
		return c.CTA, true
	case "CR_Format_Details":
		return c.FormatDetails, true
	case "CR_Custom_Dim_1":
		return c.CustomDim1, true
	}
	v, ok := c.Extra[name]
	return v, ok
}

// Taxonomies returns the taxonomy-set ids referenced by the creative.
func (c *Creative) Taxonomies() TaxonomyRefs {
	return TaxonomyRefs{Tags: c.TaxonomyTags, Platform: c.TaxonomyPlat, MediaOcean: c.TaxonomyMO}
}

// Node is a structural tree level (version, tab or section).
type Node struct {
	Ref   Ref            `json:"ref"`
	Extra map[string]any `json:"extra,omitempty"`
}

// zeroAsNil maps an unset number to nil so it resolves as empty.
func zeroAsNil(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}
