package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/lessontrack/lessontrack/key"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

func TestLog(t *testing.T) {
	Convey("Given logging is disabled", t, func() {
		viper.Set(key.LogsWrite, false)
		So(Setup(), ShouldBeNil)

		Convey("Nothing is written and entries are muted", func() {
			var buf bytes.Buffer
			logger.SetOutput(&buf)
			Warnf("dropped %d", 1)
			So(buf.Len(), ShouldEqual, 0)
			So(enabled, ShouldBeFalse)
		})
	})

	Convey("Given a json logger at warn level", t, func() {
		viper.Set(key.LogsJson, true)
		viper.Set(key.LogsLevel, "warn")
		Reset(func() {
			viper.Set(key.LogsJson, false)
			viper.Set(key.LogsLevel, "info")
			enabled = false
			logger = newMuted()
		})

		var buf bytes.Buffer
		So(configure(&buf), ShouldBeNil)

		Convey("Messages below the level are skipped", func() {
			Infof("session %s opened", "abc")
			So(buf.Len(), ShouldEqual, 0)
		})

		Convey("Fields are kept", func() {
			With(Fields{"lesson": "intro"}).Warn("completion queued")

			var entry map[string]any
			So(json.Unmarshal(buf.Bytes(), &entry), ShouldBeNil)
			So(entry["lesson"], ShouldEqual, "intro")
			So(entry["msg"], ShouldEqual, "completion queued")
			So(entry["level"], ShouldEqual, "warning")
		})

		Convey("An unknown level falls back to info", func() {
			viper.Set(key.LogsLevel, "loud")
			So(configure(&buf), ShouldBeNil)
			Infof("kept")
			So(buf.String(), ShouldContainSubstring, "kept")
		})
	})
}
