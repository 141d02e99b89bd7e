package taxonomy

import "strings"

// Source names where a variable's value comes from.
type Source string

const (
	SourceCampaign  Source = "campaign"
	SourceTactic    Source = "tactique"
	SourcePlacement Source = "placement"

	// SourceManual values are picked per entity and stored in its
	// taxonomy value map rather than a direct field.
	SourceManual Source = "manual"
)

// Variable is one entry of the variable table.
type Variable struct {
	Name   string
	Source Source
}

// CreativeScoped reports whether the variable belongs to creatives.
func (v Variable) CreativeScoped() bool {
	return strings.HasPrefix(v.Name, "CR_")
}

// variableSources is the static variable table.
var variableSources = map[string]Source{
	// Campaign
	"CA_Name":                SourceCampaign,
	"CA_Campaign_Identifier": SourceCampaign,
	"CA_Year":                SourceCampaign,
	"CA_Quarter":             SourceCampaign,
	"CA_Division":            SourceCampaign,
	"CA_Client_Ext_Id":       SourceCampaign,
	"CA_PO":                  SourceCampaign,
	"CA_Billing_ID":          SourceCampaign,
	"CA_Custom_Dim_1":        SourceCampaign,
	"CA_Custom_Dim_2":        SourceCampaign,
	"CA_Custom_Dim_3":        SourceCampaign,
	"CA_Currency":            SourceCampaign,

	// Tactic
	"TC_Label":              SourceTactic,
	"TC_Publisher":          SourceTactic,
	"TC_Media_Type":         SourceTactic,
	"TC_Buying_Method":      SourceTactic,
	"TC_Prog_Buying_Method": SourceTactic,
	"TC_Media_Objective":    SourceTactic,
	"TC_Market":             SourceTactic,
	"TC_Language":           SourceTactic,
	"TC_Inventory":          SourceTactic,
	"TC_Kind":               SourceTactic,
	"TC_Buy_Type":           SourceTactic,
	"TC_Default_Language":   SourceTactic,

	// Placement
	"PL_Label":    SourcePlacement,
	"PL_Audience": SourcePlacement,
	"PL_Product":  SourcePlacement,
	"PL_Location": SourcePlacement,
	"PL_Format":   SourcePlacement,
	"PL_Language": SourcePlacement,
	"PL_Device":   SourcePlacement,

	// Manual, placement level
	"PL_Audience_Behaviour":    SourceManual,
	"PL_Audience_Demographics": SourceManual,
	"PL_Audience_Engagement":   SourceManual,
	"PL_Audience_Interest":     SourceManual,
	"PL_Audience_Other":        SourceManual,
	"PL_Creative_Grouping":     SourceManual,
	"PL_Geo_Exclusion":         SourceManual,
	"PL_Custom_Dim_1":          SourceManual,
	"PL_Custom_Dim_2":          SourceManual,
	"PL_Custom_Dim_3":          SourceManual,

	// Manual, creative level
	"CR_Version":        SourceManual,
	"CR_Offer":          SourceManual,
	"CR_CTA":            SourceManual,
	"CR_Format_Details": SourceManual,
	"CR_Custom_Dim_1":   SourceManual,
	"CR_Custom_Dim_2":   SourceManual,
}

// LookupVariable returns the table entry for a variable name.
func LookupVariable(name string) (Variable, bool) {
	src, ok := variableSources[name]
	if !ok {
		return Variable{}, false
	}
	return Variable{Name: name, Source: src}, true
}
