package taxonomy

import (
	"context"
	"fmt"
	"strings"

	"github.com/keyxmakerx/mediatag/internal/plugins/campaigns"
)

// ResolutionContext is everything one resolution pass reads from. It is
// built once per regenerated entity and not modified while resolving.
type ResolutionContext struct {
	ClientID  string
	Campaign  *campaigns.Campaign
	Tactic    *campaigns.Tactic
	Placement *campaigns.Placement

	// Creative is set only when resolving creative levels.
	Creative *campaigns.Creative

	Cache *PassCache

	// ForceRegeneration ignores stored taxonomy values and resolves
	// strictly from the parent chain. Used after moves.
	ForceRegeneration bool
}

// ResolveVariable resolves one variable token to its output text. Names
// missing from the variable table resolve to the token text itself, which
// groups drop.
func ResolveVariable(ctx context.Context, name string, format Format, rc *ResolutionContext, isCreatif bool) (string, error) {
	v, ok := LookupVariable(name)
	if !ok {
		return VariableRef{Name: name, Format: format}.Raw(), nil
	}

	if !rc.ForceRegeneration && (v.Source == SourceManual || v.Source == SourcePlacement) {
		if tv, ok := rc.storedValue(name, isCreatif); ok {
			return rc.resolveStored(ctx, tv, format)
		}
	}

	switch raw := rc.sourceValue(v, isCreatif).(type) {
	case nil:
		return "", nil
	case string:
		if raw == "" {
			return "", nil
		}
		if format.RequiresShortcode() {
			return rc.formatShortcode(ctx, raw, format)
		}
		return raw, nil
	default:
		return fmt.Sprint(raw), nil
	}
}

// storedValue looks a variable up in the stored taxonomy values, the
// creative's own map first.
func (rc *ResolutionContext) storedValue(name string, isCreatif bool) (campaigns.TaxonomyValue, bool) {
	if isCreatif && rc.Creative != nil {
		if tv, ok := rc.Creative.TaxonomyValues[name]; ok {
			return tv, true
		}
	}
	if rc.Placement != nil {
		if tv, ok := rc.Placement.TaxonomyValues[name]; ok {
			return tv, true
		}
	}
	return campaigns.TaxonomyValue{}, false
}

func (rc *ResolutionContext) resolveStored(ctx context.Context, tv campaigns.TaxonomyValue, format Format) (string, error) {
	switch {
	case Format(tv.Format) == FormatOpen:
		return tv.OpenValue, nil
	case tv.ShortcodeID != "":
		return rc.formatShortcode(ctx, tv.ShortcodeID, format)
	default:
		return tv.Value, nil
	}
}

// sourceValue reads the raw value of a variable from its source entity.
func (rc *ResolutionContext) sourceValue(v Variable, isCreatif bool) any {
	var (
		val any
		ok  bool
	)
	switch v.Source {
	case SourceCampaign:
		if rc.Campaign != nil {
			val, ok = rc.Campaign.Field(v.Name)
		}
	case SourceTactic:
		if rc.Tactic != nil {
			val, ok = rc.Tactic.Field(v.Name)
		}
	case SourcePlacement:
		if rc.Placement != nil {
			val, ok = rc.Placement.Field(v.Name)
		}
	case SourceManual:
		if isCreatif && v.CreativeScoped() && rc.Creative != nil {
			val, ok = rc.Creative.Field(v.Name)
		} else if rc.Placement != nil {
			val, ok = rc.Placement.Field(v.Name)
		}
	}
	if !ok {
		return nil
	}
	return val
}

// formatShortcode renders shortcode id in format. A missing shortcode
// renders "".
func (rc *ResolutionContext) formatShortcode(ctx context.Context, id string, format Format) (string, error) {
	sh, err := rc.Cache.Shortcode(ctx, id)
	if err != nil {
		return "", err
	}
	if sh == nil {
		return "", nil
	}

	var custom string
	if format.usesCustomCode() {
		custom, err = rc.Cache.CustomCode(ctx, rc.ClientID, id)
		if err != nil {
			return "", err
		}
	}
	return FormatShortcodeValue(sh, custom, format), nil
}

// GenerateLevel resolves a level template. Segments are resolved in order.
func GenerateLevel(ctx context.Context, template string, rc *ResolutionContext, isCreatif bool) (string, error) {
	var out strings.Builder
	for _, n := range Parse(template) {
		switch n := n.(type) {
		case Literal:
			out.WriteString(n.Text)
		case VariableRef:
			s, err := ResolveVariable(ctx, n.Name, n.Format, rc, isCreatif)
			if err != nil {
				return "", err
			}
			out.WriteString(s)
		case Group:
			s, err := resolveGroup(ctx, n, rc, isCreatif)
			if err != nil {
				return "", err
			}
			out.WriteString(s)
		}
	}
	return out.String(), nil
}

// resolveGroup joins the non-empty resolved variables of a group with its
// delimiter. A group without variables is its inner text.
func resolveGroup(ctx context.Context, g Group, rc *ResolutionContext, isCreatif bool) (string, error) {
	if len(g.Vars) == 0 {
		return g.Inner, nil
	}

	values := make([]string, 0, len(g.Vars))
	for _, v := range g.Vars {
		s, err := ResolveVariable(ctx, v.Name, v.Format, rc, isCreatif)
		if err != nil {
			return "", err
		}
		if s == "" || strings.HasPrefix(s, "[") {
			continue
		}
		values = append(values, s)
	}
	return strings.Join(values, g.Delimiter), nil
}
