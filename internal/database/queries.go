package database

// Profile queries
const (
	insertProfileQuery = `
		INSERT INTO profiles (name, enable_webhook, webhook_url)
		VALUES (?, ?, ?)
	`

	updateProfileCredentialsQuery = `
		UPDATE profiles
		SET token = ?, session = ?
		WHERE id = ?
	`

	profileColumns = `id, name, token, session, enable_webhook, webhook_url, created_at, updated_at`

	selectProfilesQuery = `
		SELECT ` + profileColumns + `
		FROM profiles
		ORDER BY id
	`

	selectProfileByIDQuery = `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE id = ?
	`

	selectProfileByTokenQuery = `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE token = ?
	`

	updateProfileQuery = `
		UPDATE profiles
		SET name = ?, enable_webhook = ?, webhook_url = ?
		WHERE id = ?
	`

	deleteProfileQuery = `DELETE FROM profiles WHERE id = ?`
)
