package jellyfin

import "time"

// SystemInfo is the subset of /System/Info the companion displays.
type SystemInfo struct {
	ID                string `json:"Id"`
	ServerName        string `json:"ServerName"`
	Version           string `json:"Version"`
	ProductName       string `json:"ProductName,omitempty"`
	OperatingSystem   string `json:"OperatingSystem,omitempty"`
	LocalAddress      string `json:"LocalAddress,omitempty"`
	HasPendingRestart bool   `json:"HasPendingRestart"`
}

// UserPolicy holds the account flags the admin UI cares about.
type UserPolicy struct {
	IsAdministrator bool `json:"IsAdministrator"`
	IsDisabled      bool `json:"IsDisabled"`
	IsHidden        bool `json:"IsHidden"`
}

// User is a Jellyfin account.
type User struct {
	ID               string     `json:"Id"`
	Name             string     `json:"Name"`
	ServerID         string     `json:"ServerId,omitempty"`
	HasPassword      bool       `json:"HasPassword"`
	LastLoginDate    *time.Time `json:"LastLoginDate,omitempty"`
	LastActivityDate *time.Time `json:"LastActivityDate,omitempty"`
	Policy           UserPolicy `json:"Policy"`
}

// NowPlaying describes the item a session is playing.
type NowPlaying struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
	Type string `json:"Type"`
}

// Session is an active client connection.
type Session struct {
	ID                 string      `json:"Id"`
	UserID             string      `json:"UserId,omitempty"`
	UserName           string      `json:"UserName,omitempty"`
	Client             string      `json:"Client"`
	DeviceName         string      `json:"DeviceName"`
	ApplicationVersion string      `json:"ApplicationVersion,omitempty"`
	LastActivityDate   *time.Time  `json:"LastActivityDate,omitempty"`
	NowPlayingItem     *NowPlaying `json:"NowPlayingItem,omitempty"`
}

// Library is a virtual folder.
type Library struct {
	Name           string   `json:"Name"`
	ItemID         string   `json:"ItemId"`
	CollectionType string   `json:"CollectionType,omitempty"`
	Locations      []string `json:"Locations"`
}

// ItemCounts is the response of /Items/Counts.
type ItemCounts struct {
	MovieCount      int `json:"MovieCount"`
	SeriesCount     int `json:"SeriesCount"`
	EpisodeCount    int `json:"EpisodeCount"`
	ArtistCount     int `json:"ArtistCount"`
	AlbumCount      int `json:"AlbumCount"`
	SongCount       int `json:"SongCount"`
	MusicVideoCount int `json:"MusicVideoCount"`
	BoxSetCount     int `json:"BoxSetCount"`
	BookCount       int `json:"BookCount"`
	ItemCount       int `json:"ItemCount"`
}
