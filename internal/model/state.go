package model

// GameState tracks the lifecycle phase of a hosted game.
type GameState int

const (
	GameInitializing GameState = iota
	GameStaging
	GameBattleroom
	GameLaunching
	GameLive
	GameEnded
)

func (s GameState) String() string {
	switch s {
	case GameInitializing:
		return "initializing"
	case GameStaging:
		return "staging"
	case GameBattleroom:
		return "battleroom"
	case GameLaunching:
		return "launching"
	case GameLive:
		return "live"
	case GameEnded:
		return "ended"
	}
	return "unknown"
}

// ClientState returns the state name used in game_info messages.
func (s GameState) ClientState() string {
	if s == GameInitializing {
		return "unknown"
	}
	return s.String()
}

// PlayerState tracks what a signed-in player is currently doing.
type PlayerState int

const (
	PlayerIdle PlayerState = iota
	PlayerHosting
	PlayerJoining
	PlayerHosted
	PlayerJoined
	PlayerPlaying
	PlayerSearchingLadder
	PlayerStartingAutomatch
)

func (s PlayerState) String() string {
	switch s {
	case PlayerIdle:
		return "idle"
	case PlayerHosting:
		return "hosting"
	case PlayerJoining:
		return "joining"
	case PlayerHosted:
		return "hosted"
	case PlayerJoined:
		return "joined"
	case PlayerPlaying:
		return "playing"
	case PlayerSearchingLadder:
		return "searching_ladder"
	case PlayerStartingAutomatch:
		return "starting_automatch"
	}
	return "idle"
}

// VisibilityState controls who can see a lobby in the game list.
type VisibilityState string

const (
	VisibilityPublic  VisibilityState = "public"
	VisibilityFriends VisibilityState = "friends"
)

// GameType distinguishes how a game was created.
type GameType int

const (
	GameTypeCustom GameType = iota
	GameTypeMatchmaker
	GameTypeCoop
)

func (t GameType) String() string {
	switch t {
	case GameTypeCustom:
		return "custom"
	case GameTypeMatchmaker:
		return "matchmaker"
	case GameTypeCoop:
		return "coop"
	}
	return "custom"
}

// Victory is the in-game victory condition option.
type Victory int

const (
	VictoryDemoralization Victory = iota
	VictoryDomination
	VictoryEradication
	VictorySandbox
)

// ParseVictory maps the game option string to a Victory value.
func ParseVictory(s string) (Victory, bool) {
	switch s {
	case "demoralization":
		return VictoryDemoralization, true
	case "domination":
		return VictoryDomination, true
	case "eradication":
		return VictoryEradication, true
	case "sandbox":
		return VictorySandbox, true
	}
	return VictoryDemoralization, false
}
