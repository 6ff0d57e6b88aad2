package analyser

// proxyProfile bundles a User-Agent with the Accept-* headers a real
// browser of that family sends, so step 5's strategies (SPEC_FULL.md
// §4.3) look like distinct clients rather than the same request with a
// swapped UA string.
type proxyProfile struct {
	Name      string
	UserAgent string
	Headers   map[string]string
}

// proxyProfiles is tried in order across retry strategies: desktop
// Chrome first (most common, least likely to itself trigger blocking),
// then a Firefox-like profile, then a mobile Safari profile as a last
// resort since some sites serve different markup to mobile clients.
var proxyProfiles = []proxyProfile{
	{
		Name:      "desktop-chrome",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Sec-Fetch-Mode":  "navigate",
		},
	},
	{
		Name:      "desktop-firefox-like",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0",
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.5",
		},
	},
	{
		Name:      "mobile-safari",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		},
	},
}

// profileForAttempt cycles through proxyProfiles, wrapping around if
// more retry attempts are configured than profiles exist.
func profileForAttempt(attempt int) proxyProfile {
	return proxyProfiles[attempt%len(proxyProfiles)]
}
