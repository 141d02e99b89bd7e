package taxonomy

// FormatShortcodeValue renders a shortcode in the requested format.
// customCode is the client's override for the shortcode, or "". Unknown
// formats render the French display name. A nil shortcode renders "".
func FormatShortcodeValue(sh *Shortcode, customCode string, format Format) string {
	if sh == nil {
		return ""
	}

	switch format {
	case FormatCode:
		return sh.Code
	case FormatDisplayFR:
		return sh.DisplayNameFR
	case FormatDisplayEN:
		return firstNonEmpty(sh.DisplayNameEN, sh.DisplayNameFR)
	case FormatUTM:
		return firstNonEmpty(sh.DefaultUTM, sh.Code)
	case FormatCustomUTM:
		return firstNonEmpty(customCode, sh.DefaultUTM, sh.Code)
	case FormatCustomCode:
		return firstNonEmpty(customCode, sh.Code)
	default:
		return sh.DisplayNameFR
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
