package open

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestURL(t *testing.T) {
	Convey("URL should refuse anything but http(s)", t, func() {
		for _, raw := range []string{"file:///etc/passwd", "javascript:alert(1)", "::"} {
			So(URL(raw), ShouldNotBeNil)
		}
	})
}
