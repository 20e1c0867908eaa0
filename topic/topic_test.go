package topic

import "testing"

func TestTopicNames(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{Request("u1", "d1"), "users/u1/devices/d1/rpc/request"},
		{Response("u1", "d1"), "users/u1/devices/d1/rpc/response"},
		{Status("u1", "d1"), "users/u1/devices/d1/status"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}

func TestMatch(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"users/u1/devices/d1/status", "users/u1/devices/d1/status", true},
		{"users/+/devices/+/status", "users/u1/devices/d1/status", true},
		{"users/u1/#", "users/u1/devices/d1/rpc/response", true},
		{"#", "users/u1", true},
		{"users/+/status", "users/u1/devices/d1/status", false},
		{"users/u1/devices/d1", "users/u1/devices/d1/status", false},
		{"users/u1/#/status", "users/u1/devices/d1/status", false},
		{"users/u2/devices/+/rpc/request", "users/u1/devices/d1/rpc/request", false},
	}
	for _, c := range cases {
		if got := Match(c.filter, c.topic); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.filter, c.topic, got, c.want)
		}
	}
}
