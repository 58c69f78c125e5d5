package integration_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/metinatakli/cinex-booking/api"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type APITestSuite struct {
	BaseSuite
}

func TestAPISuite(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}
	suite.Run(t, new(APITestSuite))
}

func (s *APITestSuite) TestBookingFlow() {
	screenID, movieID := s.seedCatalog(2, 3)
	handler := s.app.Routes()

	var bookingID string

	scenarios := []Scenario{
		{
			Name:           "rejects scheduling by non admins",
			Method:         http.MethodPost,
			URL:            fmt.Sprintf("/screens/%d/shows", screenID),
			Body:           fmt.Sprintf(`{"movieId": %d, "startTime": "2095-01-01T18:00:00Z", "durationMinutes": 120}`, movieID),
			Headers:        s.bearer(testUser),
			ExpectedStatus: http.StatusForbidden,
			ExpectedResponse: `{
				"message": "You must be an administrator to access this resource"
			}`,
		},
		{
			Name:           "schedules a show",
			Method:         http.MethodPost,
			URL:            fmt.Sprintf("/screens/%d/shows", screenID),
			Body:           fmt.Sprintf(`{"movieId": %d, "startTime": "2095-01-01T21:00:00+03:00", "durationMinutes": 120}`, movieID),
			Headers:        s.bearer(adminUser),
			ExpectedStatus: http.StatusCreated,
			ExpectedResponse: fmt.Sprintf(`{
				"movieId": %d,
				"screenId": %d,
				"theaterId": 1,
				"startTime": "2095-01-01T18:00:00Z",
				"endTime": "2095-01-01T20:00:00Z",
				"durationMinutes": 120,
				"phase": "scheduled",
				"availableSeats": 6
			}`, movieID, screenID),
		},
		{
			Name:           "rejects an overlapping show",
			Method:         http.MethodPost,
			URL:            fmt.Sprintf("/screens/%d/shows", screenID),
			Body:           fmt.Sprintf(`{"movieId": %d, "startTime": "2095-01-01T19:59:00Z", "durationMinutes": 60}`, movieID),
			Headers:        s.bearer(adminUser),
			ExpectedStatus: http.StatusConflict,
			ExpectedResponse: `{
				"code": "SHOW_TIME_OVERLAP",
				"message": "show time overlaps with an existing show",
				"conflictingShowId": 1
			}`,
		},
		{
			Name:           "reserves seats",
			Method:         http.MethodPost,
			URL:            "/shows/1/bookings",
			Body:           `{"seats": [{"row": 0, "col": 0}, {"row": 1, "col": 2}]}`,
			Headers:        s.bearer(testUser),
			ExpectedStatus: http.StatusCreated,
			ExpectedResponse: `{
				"userId": 1,
				"showId": 1,
				"seats": [{"row": 0, "col": 0}, {"row": 1, "col": 2}],
				"status": "CONFIRMED"
			}`,
			AfterTestFunc: func(t testing.TB, res *http.Response) {
				bookingID = res.Header.Get("Location")
				require.NotEmpty(t, bookingID)
			},
		},
		{
			Name:           "reports taken seats",
			Method:         http.MethodPost,
			URL:            "/shows/1/bookings",
			Body:           `{"seats": [{"row": 1, "col": 1}, {"row": 1, "col": 2}]}`,
			Headers:        s.bearer(otherUser),
			ExpectedStatus: http.StatusConflict,
			ExpectedResponse: `{
				"code": "SEAT_UNAVAILABLE",
				"message": "some seats are already booked",
				"seats": [{"row": 1, "col": 2}]
			}`,
		},
		{
			Name:           "shows the seat map",
			Method:         http.MethodGet,
			URL:            "/shows/1/seats",
			ExpectedStatus: http.StatusOK,
			ExpectedResponse: `{
				"showId": 1,
				"rows": 2,
				"cols": 3,
				"version": 2,
				"availableSeats": 4,
				"cells": [[1, 0, 0], [0, 0, 1]]
			}`,
		},
	}

	for _, scenario := range scenarios {
		scenario.Run(s.T(), handler)
	}

	s.Require().NotEmpty(bookingID)

	scenarios = []Scenario{
		{
			Name:           "forbids another user from releasing",
			Method:         http.MethodDelete,
			URL:            bookingID,
			Headers:        s.bearer(otherUser),
			ExpectedStatus: http.StatusForbidden,
			ExpectedResponse: `{
				"code": "NOT_AUTHORIZED",
				"message": "you are not authorized to release this booking"
			}`,
		},
		{
			Name:           "releases the booking",
			Method:         http.MethodDelete,
			URL:            bookingID,
			Headers:        s.bearer(testUser),
			ExpectedStatus: http.StatusOK,
			ExpectedResponse: `{
				"userId": 1,
				"showId": 1,
				"seats": [{"row": 0, "col": 0}, {"row": 1, "col": 2}],
				"status": "CANCELLED"
			}`,
		},
		{
			Name:           "frees the seats",
			Method:         http.MethodGet,
			URL:            "/shows/1/seats",
			ExpectedStatus: http.StatusOK,
			AfterTestFunc: func(t testing.TB, res *http.Response) {
				var seatMap api.SeatMapResponse
				require.NoError(t, json.NewDecoder(res.Body).Decode(&seatMap))
				require.Equal(t, 6, seatMap.AvailableSeats)
				require.Equal(t, 3, seatMap.Version)
			},
		},
		{
			Name:           "lists the user's bookings",
			Method:         http.MethodGet,
			URL:            "/users/me/bookings",
			Headers:        s.bearer(testUser),
			ExpectedStatus: http.StatusOK,
			ExpectedResponse: `{
				"bookings": [{
					"userId": 1,
					"showId": 1,
					"seats": [{"row": 0, "col": 0}, {"row": 1, "col": 2}],
					"status": "CANCELLED"
				}],
				"metadata": {
					"currentPage": 1,
					"firstPage": 1,
					"lastPage": 1,
					"pageSize": 10,
					"totalRecords": 1
				}
			}`,
		},
		{
			Name:           "lists the movie's shows for the day",
			Method:         http.MethodGet,
			URL:            fmt.Sprintf("/movies/%d/shows?date=2095-01-01", movieID),
			ExpectedStatus: http.StatusOK,
			AfterTestFunc: func(t testing.TB, res *http.Response) {
				var shows api.ShowsResponse
				require.NoError(t, json.NewDecoder(res.Body).Decode(&shows))
				require.Len(t, shows.Shows, 1)
				require.Equal(t, 6, shows.Shows[0].AvailableSeats)
			},
		},
	}

	for _, scenario := range scenarios {
		scenario.Run(s.T(), handler)
	}
}

func (s *APITestSuite) TestServerRequiresToken() {
	res, err := http.Post(s.server.URL+"/shows/1/bookings", "application/json", nil)
	s.Require().NoError(err)
	defer res.Body.Close()

	s.Equal(http.StatusUnauthorized, res.StatusCode)

	res, err = http.Get(s.server.URL + "/healthcheck")
	s.Require().NoError(err)
	defer res.Body.Close()

	s.Equal(http.StatusOK, res.StatusCode)
}
