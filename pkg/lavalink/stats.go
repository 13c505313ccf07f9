package lavalink

// NodeStats is the resource snapshot a node pushes over the websocket,
// replaced wholesale on every "stats" message.
type NodeStats struct {
	Uptime int64 `json:"uptime"`

	Players        int `json:"players"`
	PlayingPlayers int `json:"playingPlayers"`

	Memory struct {
		Free       int64 `json:"free"`
		Used       int64 `json:"used"`
		Allocated  int64 `json:"allocated"`
		Reservable int64 `json:"reservable"`
	} `json:"memory"`

	CPU struct {
		Cores        int     `json:"cores"`
		SystemLoad   float64 `json:"systemLoad"`
		LavalinkLoad float64 `json:"lavalinkLoad"`
	} `json:"cpu"`
}

// RouteStats is the route planner status reported by a node.
type RouteStats struct {
	Class   RouteStrategy `json:"class"`
	Details struct {
		IPBlock struct {
			Type RouteIPType `json:"type"`
			Size string      `json:"size"`
		} `json:"ipBlock"`
		FailingAddresses    []FailingAddress `json:"failingAddresses"`
		BlockIndex          string           `json:"blockIndex"`
		CurrentAddressIndex string           `json:"currentAddressIndex"`
	} `json:"details"`
}

// FailingAddress is an IP the node's route planner has marked as banned.
type FailingAddress struct {
	Address       string `json:"failingAddress"`
	Timestamp     int64  `json:"failingTimestamp"`
	FormattedTime string `json:"failingTime"`
}
