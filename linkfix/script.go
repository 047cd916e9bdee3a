package linkfix

import (
	"encoding/json"
	"fmt"

	"github.com/andybalholm/cascadia"
)

// ScriptID is the id of the <script> element added by InjectScript.
const ScriptID = "retarget-links"

var scriptSel = cascadia.MustCompile("script#" + ScriptID)

// scriptBody mirrors Retarget on the live DOM. It relies on the browser's
// resolved a.href and evaluates to the number of links it retargeted.
const scriptBody = `(function() {
    var site = %s;
    var links = document.getElementsByTagName('a');
    var n = 0;
    for (var i = 0, len = links.length; i < len; i++) {
        var href = links[i].href;
        if (typeof href !== 'string') {
            continue;
        }
        if ((href.slice(0, 5) === 'http:' || href.slice(0, 6) === 'https:') &&
                href.slice(0, site.length) !== site) {
            links[i].target = '%s';
            n++;
        }
    }
    return n;
})();`

// Script returns the JavaScript form of Retarget for site. The site is
// embedded as a JSON string, which also escapes '<' and '>' so the result is
// safe inside an inline <script> element.
func Script(site Site) string {
	lit, err := json.Marshal(string(site))
	if err != nil {
		// strings always marshal
		panic(err)
	}
	return fmt.Sprintf(scriptBody, lit, NewTab)
}
