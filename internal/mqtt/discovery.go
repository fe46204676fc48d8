package mqtt

import (
	"fmt"
	"strings"

	"ledstrip-controller/internal/animation"
)

// Discovery describes the Home Assistant light entity for one strip.
type Discovery struct {
	Topic   string
	Payload map[string]interface{}
}

func safeID(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return -1
	}, s)
}

// BuildDiscovery assembles the retained config message for Home Assistant.
func BuildDiscovery(discoveryPrefix, topicPrefix, clientID, deviceName, version string) Discovery {
	id := safeID(clientID + "_" + deviceName)
	t := func(sub string) string { return topicPrefix + "/" + sub }

	effects := append([]string{"none"}, animation.ThemeNames()[1:]...)

	return Discovery{
		Topic: fmt.Sprintf("%s/light/%s/light/config", discoveryPrefix, id),
		Payload: map[string]interface{}{
			"name":      deviceName,
			"unique_id": id + "_light",
			"object_id": id,
			"icon":      "mdi:led-strip-variant",

			"command_topic": t("power/set"),
			"state_topic":   t("power/state"),

			"brightness_command_topic": t("brightness/set"),
			"brightness_state_topic":   t("brightness/state"),
			"brightness_scale":         255,

			"rgb_command_topic": t("color/set"),
			"rgb_state_topic":   t("color/state"),

			"effect_command_topic": t("effect/set"),
			"effect_state_topic":   t("effect/state"),
			"effect_list":          effects,

			"availability_mode": "all",
			"availability": []map[string]string{
				{
					"topic":                 t("availability"),
					"payload_available":     "online",
					"payload_not_available": "offline",
				},
				{
					"topic":                 t("connection"),
					"payload_available":     "connected",
					"payload_not_available": "disconnected",
				},
			},

			"device": map[string]interface{}{
				"identifiers":  []string{id},
				"name":         deviceName,
				"manufacturer": "ledstrip-controller",
				"model":        "Addressable LED strip",
				"sw_version":   version,
			},
		},
	}
}
