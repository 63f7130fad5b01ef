package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const openMeteoEndpoint = "https://api.open-meteo.com/v1/forecast"

// WeatherReport is the current conditions at a location.
type WeatherReport struct {
	Temperature float64 `json:"temperature"`
	WeatherCode int     `json:"weatherCode"`
	Humidity    float64 `json:"humidity"`
	City        string  `json:"city"`
}

// WeatherLookup fetches current weather for a location.
type WeatherLookup interface {
	Current(ctx context.Context, latitude, longitude float64, city string) (WeatherReport, error)
}

// OpenMeteoClient queries the open-meteo forecast API.
type OpenMeteoClient struct {
	httpClient *http.Client
}

func NewOpenMeteoClient() *OpenMeteoClient {
	return &OpenMeteoClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type openMeteoResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weathercode"`
		Humidity    float64 `json:"relativehumidity_2m"`
	} `json:"current"`
}

func (c *OpenMeteoClient) Current(ctx context.Context, latitude, longitude float64, city string) (WeatherReport, error) {
	url := fmt.Sprintf("%s?latitude=%f&longitude=%f&current=temperature_2m,weathercode,relativehumidity_2m&timezone=auto",
		openMeteoEndpoint, latitude, longitude)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return WeatherReport{}, fmt.Errorf("failed to build weather request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return WeatherReport{}, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return WeatherReport{}, fmt.Errorf("weather request returned status %d", resp.StatusCode)
	}

	var decoded openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return WeatherReport{}, fmt.Errorf("failed to decode weather response: %w", err)
	}

	return WeatherReport{
		Temperature: decoded.Current.Temperature,
		WeatherCode: decoded.Current.WeatherCode,
		Humidity:    decoded.Current.Humidity,
		City:        city,
	}, nil
}
